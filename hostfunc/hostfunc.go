package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Func is a host function callable from guest code. Arguments arrive as
// decoded JSON; the result is encoded back to JSON for the guest.
type Func func(ctx context.Context, args map[string]any) (any, error)

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent registry holding the same functions.
func (r *Registry) Clone() *Registry {
	c := NewRegistry()
	if r == nil {
		return c
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, fn := range r.funcs {
		c.funcs[name] = fn
	}
	return c
}

// Call invokes a registered function.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	fn, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown function: %s", name)
	}
	return fn(ctx, args)
}

var errArgRequired = errors.New("argument required")

func stringArg(args map[string]any, name string) (string, error) {
	s, ok := args[name].(string)
	if !ok {
		return "", fmt.Errorf("%s: %w", name, errArgRequired)
	}
	return s, nil
}

// intArg accepts JSON numbers, which decode as float64.
func intArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

func stringsArg(args map[string]any, name string) []string {
	raw, _ := args[name].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
