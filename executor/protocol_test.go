package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/scratchpad/hostfunc"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFindNextMessage(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantIdx     int
		wantMsgType messageType
	}{
		{"no message", "hello world", -1, messageNone},
		{"call message", "prefix\x00SCRATCH_CALL:{}\x00suffix", 6, messageCall},
		{"event message", "prefix\x00SCRATCH_EVENT:{}\x00", 6, messageEvent},
		{"ready signal", "\x00SCRATCH_READY\x00", 0, messageReady},
		{"done before call", "\x00SCRATCH_DONE:{}\x00\x00SCRATCH_CALL:{}\x00", 0, messageDone},
		{"event before done", "x\x00SCRATCH_EVENT:{}\x00\x00SCRATCH_DONE:{}\x00", 1, messageEvent},
		{"empty content", "", -1, messageNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, msgType := findNextMessage(tt.content)
			if idx != tt.wantIdx {
				t.Errorf("idx = %d, want %d", idx, tt.wantIdx)
			}
			if msgType != tt.wantMsgType {
				t.Errorf("msgType = %d, want %d", msgType, tt.wantMsgType)
			}
		})
	}
}

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		idx           int
		prefix        string
		wantPayload   string
		wantRemaining string
		wantOK        bool
	}{
		{
			name:          "valid call",
			content:       `prefix` + "\x00SCRATCH_CALL:{\"fn\":\"test\"}\x00" + `suffix`,
			idx:           6,
			prefix:        callPrefix,
			wantPayload:   `{"fn":"test"}`,
			wantRemaining: "suffix",
			wantOK:        true,
		},
		{
			name:          "incomplete message",
			content:       "prefix\x00SCRATCH_CALL:{partial",
			idx:           6,
			prefix:        callPrefix,
			wantPayload:   "",
			wantRemaining: "\x00SCRATCH_CALL:{partial",
			wantOK:        false,
		},
		{
			name:          "valid done",
			content:       "\x00SCRATCH_DONE:{\"id\":1}\x00remaining",
			idx:           0,
			prefix:        donePrefix,
			wantPayload:   `{"id":1}`,
			wantRemaining: "remaining",
			wantOK:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, remaining, ok := extractMessage(tt.content, tt.idx, tt.prefix)
			if payload != tt.wantPayload {
				t.Errorf("payload = %q, want %q", payload, tt.wantPayload)
			}
			if remaining != tt.wantRemaining {
				t.Errorf("remaining = %q, want %q", remaining, tt.wantRemaining)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestPartialFrame(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"plain", 5},
		{"abc\x00SCR", 3},
		{"abc\x00", 3},
		{"abc\x00other", 9},
	}
	for _, tt := range tests {
		if got := partialFrame(tt.content); got != tt.want {
			t.Errorf("partialFrame(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}

func frame(prefix string, v any) string {
	data, _ := json.Marshal(v)
	return prefix + string(data) + frameSuffix
}

func TestProtocolRoutesEvents(t *testing.T) {
	p := newSessionProtocol(hostfunc.NewRegistry(), io.Discard, discardLogger())

	var got []Event
	p.begin(context.Background(), 2, func(ev Event) { got = append(got, ev) })

	stale := frame(eventPrefix, map[string]any{"id": 1, "kind": "log", "args": []string{"old"}})
	live := frame(eventPrefix, map[string]any{"id": 2, "kind": "value", "label": "x", "args": []string{"8"}, "type": "number", "line": 3})

	p.Write([]byte("raw text\n" + stale))
	// A frame split across writes is held until complete.
	p.Write([]byte(live[:10]))
	p.Write([]byte(live[10:]))

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(got), got)
	}
	if got[0].Kind != EventError || got[0].Text() != "raw text" {
		t.Errorf("raw stderr event = %+v", got[0])
	}
	want := Event{Kind: EventValue, Label: "x", Args: []string{"8"}, Type: "number", Line: 3}
	if got[1].Kind != want.Kind || got[1].Label != want.Label || got[1].Text() != "8" || got[1].Line != 3 {
		t.Errorf("value event = %+v, want %+v", got[1], want)
	}

	p.Write([]byte(frame(donePrefix, doneMessage{ID: 1, OK: true})))
	select {
	case msg := <-p.Done():
		t.Fatalf("stale done delivered: %+v", msg)
	default:
	}

	p.Write([]byte(frame(donePrefix, doneMessage{ID: 2, OK: true, Value: "3", Type: "number"})))
	select {
	case msg := <-p.Done():
		if msg.Value != "3" {
			t.Errorf("done value = %q, want 3", msg.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("done not delivered")
	}

	p.end()
	p.Write([]byte(frame(eventPrefix, map[string]any{"id": 2, "kind": "log", "args": []string{"late"}})))
	if len(got) != 2 {
		t.Errorf("event delivered after end: %+v", got[len(got)-1])
	}
}

func TestProtocolPartialRawLine(t *testing.T) {
	p := newSessionProtocol(hostfunc.NewRegistry(), io.Discard, discardLogger())

	var got []string
	p.begin(context.Background(), 1, func(ev Event) { got = append(got, ev.Text()) })
	p.Write([]byte("no newline"))
	if len(got) != 0 {
		t.Fatalf("partial line emitted early: %q", got)
	}
	p.end()
	if len(got) != 1 || got[0] != "no newline" {
		t.Errorf("got %q, want flushed partial line", got)
	}
}

func TestProtocolReady(t *testing.T) {
	p := newSessionProtocol(hostfunc.NewRegistry(), io.Discard, discardLogger())
	p.Write([]byte(readySignal[:5]))
	select {
	case <-p.Ready():
		t.Fatal("ready before signal completed")
	default:
	}
	p.Write([]byte(readySignal[5:]))
	select {
	case <-p.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready not signalled")
	}
}

func TestProtocolAnswersCalls(t *testing.T) {
	registry := hostfunc.NewRegistry()
	registry.Register("echo", func(ctx context.Context, args map[string]any) (any, error) {
		return args["v"], nil
	})

	stdinReader, stdinWriter := io.Pipe()
	defer stdinReader.Close()
	p := newSessionProtocol(registry, stdinWriter, discardLogger())
	lines := bufio.NewReader(stdinReader)

	tests := []struct {
		name string
		req  callRequest
		want string
	}{
		{"known function", callRequest{Fn: "echo", Args: map[string]any{"v": "hi"}}, `{"data":"hi"}`},
		{"unknown function", callRequest{Fn: "nope"}, `{"error":"unknown function: nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.Write([]byte(frame(callPrefix, tt.req)))
			line, err := lines.ReadString('\n')
			if err != nil {
				t.Fatalf("read response: %v", err)
			}
			if got := strings.TrimSpace(line); got != tt.want {
				t.Errorf("response = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCallResponseJSON(t *testing.T) {
	tests := []struct {
		name     string
		resp     callResponse
		wantJSON string
	}{
		{
			name:     "success response",
			resp:     callResponse{Data: "value"},
			wantJSON: `"data":"value"`,
		},
		{
			name:     "empty string kept",
			resp:     callResponse{Data: ""},
			wantJSON: `"data":""`,
		},
		{
			name:     "error response",
			resp:     callResponse{Error: "something failed"},
			wantJSON: `"error":"something failed"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := json.Marshal(tt.resp)
			if !strings.Contains(string(data), tt.wantJSON) {
				t.Errorf("json = %q, want to contain %q", string(data), tt.wantJSON)
			}
		})
	}
}

func TestLineFromStack(t *testing.T) {
	tests := []struct {
		stack string
		want  int
		ok    bool
	}{
		{"    at <anonymous> (<evalScript>:3:9)\n", 3, true},
		{"    at f (<evalScript>:12)\n    at <eval> (<evalScript>:2)", 12, true},
		{"    at native", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := lineFromStack(tt.stack)
		if got != tt.want || ok != tt.ok {
			t.Errorf("lineFromStack(%q) = %d, %v; want %d, %v", tt.stack, got, ok, tt.want, tt.ok)
		}
	}
}

func TestGuestErrorMessage(t *testing.T) {
	tests := []struct {
		err  GuestError
		want string
	}{
		{GuestError{Name: "ReferenceError", Message: "x is not defined"}, "ReferenceError: x is not defined"},
		{GuestError{Message: "boom"}, "boom"},
		{GuestError{Name: "Error"}, "Error"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
