//go:build wasip1

// Mock language for testing executor logic without a real interpreter.
// Build with: GOOS=wasip1 GOARCH=wasm go build -o mock.wasm mock.go
//
// Each batch is echoed as a log event. A batch reading "fail" reports an
// error on line 2, "hang" never completes and "call:<fn>" performs a host
// call and logs the response line.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

func frame(kind string, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(os.Stderr, "\x00SCRATCH_%s:%s\x00", kind, data)
}

func main() {
	fmt.Fprint(os.Stderr, "\x00SCRATCH_READY\x00")

	in := bufio.NewReader(os.Stdin)
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return
		}
		var cmd struct {
			Type    string `json:"type"`
			ID      int    `json:"id"`
			Batches []struct {
				Code string `json:"code"`
			} `json:"batches"`
		}
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			continue
		}

		if cmd.Type == "exit" {
			return
		}
		if cmd.Type != "exec" {
			continue
		}

		failed, last := false, ""
		for _, b := range cmd.Batches {
			switch {
			case b.Code == "hang":
				for {
				}
			case b.Code == "fail":
				frame("DONE", map[string]any{"id": cmd.ID, "ok": false, "name": "Error", "message": "mock failure", "stack": "    at <eval> (<evalScript>:2)\n"})
				failed = true
			case strings.HasPrefix(b.Code, "call:"):
				frame("CALL", map[string]any{"fn": strings.TrimPrefix(b.Code, "call:"), "args": map[string]any{}})
				resp, err := in.ReadString('\n')
				if err != nil {
					return
				}
				frame("EVENT", map[string]any{"id": cmd.ID, "kind": "log", "args": []string{strings.TrimSpace(resp)}})
			default:
				fmt.Print(b.Code + "\n")
				frame("EVENT", map[string]any{"id": cmd.ID, "kind": "log", "args": []string{b.Code}})
			}
			if failed {
				break
			}
			last = b.Code
		}
		if !failed {
			frame("DONE", map[string]any{"id": cmd.ID, "ok": true, "value": last, "type": "string"})
		}
	}
}
