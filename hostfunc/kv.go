package hostfunc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// KVConfig bounds the in-memory store.
type KVConfig struct {
	MaxKeySize   int
	MaxValueSize int
	MaxEntries   int
}

func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize:   256,
		MaxValueSize: 64 << 10,
		MaxEntries:   1000,
	}
}

// KVOption adjusts a KVConfig.
type KVOption func(*KVConfig)

func WithMaxKeySize(n int) KVOption {
	return func(c *KVConfig) { c.MaxKeySize = n }
}

func WithMaxValueSize(n int) KVOption {
	return func(c *KVConfig) { c.MaxValueSize = n }
}

func WithMaxEntries(n int) KVOption {
	return func(c *KVConfig) { c.MaxEntries = n }
}

// KV is a bounded key-value store shared by every submission of a session.
// Values are any JSON value; sizes are measured on their JSON encoding.
type KV struct {
	cfg  KVConfig
	data map[string]any
	mu   sync.RWMutex
}

func NewKV(cfg KVConfig, opts ...KVOption) *KV {
	for _, opt := range opts {
		opt(&cfg)
	}
	return &KV{cfg: cfg, data: make(map[string]any)}
}

func (s *KV) Register(r *Registry) {
	r.Register("kv_get", s.Get)
	r.Register("kv_set", s.Set)
	r.Register("kv_delete", s.Delete)
	r.Register("kv_keys", s.Keys)
	r.Register("kv_clear", s.Clear)
}

func (s *KV) key(args map[string]any) (string, error) {
	key, err := stringArg(args, "key")
	if err != nil {
		return "", err
	}
	if s.cfg.MaxKeySize > 0 && len(key) > s.cfg.MaxKeySize {
		return "", fmt.Errorf("key exceeds max size of %d bytes", s.cfg.MaxKeySize)
	}
	return key, nil
}

// Get returns the stored value, or args["default"] when the key is absent.
func (s *KV) Get(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	val, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return args["default"], nil
	}
	return val, nil
}

func (s *KV) Set(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}
	val, ok := args["value"]
	if !ok {
		return nil, fmt.Errorf("value: %w", errArgRequired)
	}
	encoded, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("value not serializable: %w", err)
	}
	if s.cfg.MaxValueSize > 0 && len(encoded) > s.cfg.MaxValueSize {
		return nil, fmt.Errorf("value exceeds max size of %d bytes", s.cfg.MaxValueSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; !exists && s.cfg.MaxEntries > 0 && len(s.data) >= s.cfg.MaxEntries {
		return nil, fmt.Errorf("store full: max %d entries", s.cfg.MaxEntries)
	}
	s.data[key] = val
	return nil, nil
}

// Delete removes a key and reports whether it existed.
func (s *KV) Delete(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	_, existed := s.data[key]
	delete(s.data, key)
	s.mu.Unlock()
	return existed, nil
}

// Keys returns all keys in sorted order.
func (s *KV) Keys(ctx context.Context, args map[string]any) (any, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (s *KV) Clear(ctx context.Context, args map[string]any) (any, error) {
	s.mu.Lock()
	s.data = make(map[string]any)
	s.mu.Unlock()
	return nil, nil
}

// Len returns the number of stored entries.
func (s *KV) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
