package hostfunc

import (
	"context"
	"time"
)

// OSInfo reports a fixed, virtual machine description to the guest os
// module. Nothing about the real host is exposed.
type OSInfo struct {
	started time.Time
}

func NewOSInfo() *OSInfo {
	return &OSInfo{started: time.Now()}
}

func (o *OSInfo) Register(r *Registry) {
	r.Register("os_info", o.Info)
}

func (o *OSInfo) Info(ctx context.Context, args map[string]any) (any, error) {
	return map[string]any{
		"platform": "wasi",
		"arch":     "wasm32",
		"type":     "WASI",
		"release":  "preview1",
		"hostname": "sandbox",
		"homedir":  "/home/sandbox",
		"tmpdir":   "/tmp",
		"EOL":      "\n",
		"cpus":     1,
		"uptime":   time.Since(o.started).Seconds(),
		"username": "sandbox",
	}, nil
}
