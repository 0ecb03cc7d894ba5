package executor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/scratchpad/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Result holds the outcome of one Run. Output is the console output of the
// run, one line per event. Value and Type describe the completion value;
// Type is "undefined" or empty when there is none.
type Result struct {
	Output   string
	Value    string
	Type     string
	Duration time.Duration
	Error    error
}

// HasValue reports whether the run produced a completion value.
func (r Result) HasValue() bool {
	return r.Error == nil && r.Type != "" && r.Type != "undefined"
}

// Executor manages WASM runtimes and compiled module caching.
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	registry *hostfunc.Registry
	logger   *slog.Logger
	mu       sync.RWMutex
	closed   bool
}

// New creates an Executor with the given host function registry. Every
// session gets its own copy of registry plus the capabilities it enables.
func New(registry *hostfunc.Registry, opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx := context.Background()
	rt, cache, err := newRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}

	e := &Executor{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[string]wazero.CompiledModule),
		registry: registry,
		logger:   cfg.logger,
	}

	for _, lang := range cfg.precompile {
		if _, err := e.getCompiled(ctx, lang); err != nil {
			e.Close()
			return nil, fmt.Errorf("precompile %s: %w", lang.Name(), err)
		}
	}

	return e, nil
}

// newRuntime builds the wazero runtime shared by every session, backed by
// an on-disk compilation cache when one is configured.
func newRuntime(ctx context.Context, cfg executorConfig) (wazero.Runtime, wazero.CompilationCache, error) {
	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	var cache wazero.CompilationCache
	if cfg.diskCache {
		dir := cmp.Or(cfg.cacheDir, defaultCacheDir())
		c, err := wazero.NewCompilationCacheWithDir(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("create disk cache %s: %w", dir, err)
		}
		cache = c
		rtConfig = rtConfig.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		if cache != nil {
			cache.Close(ctx)
		}
		return nil, nil, fmt.Errorf("instantiate WASI: %w", err)
	}
	return rt, cache, nil
}

// Run executes code once in a fresh session and discards it. Code is
// evaluated as a single batch, asynchronously when it mentions await.
func (e *Executor) Run(ctx context.Context, lang Language, code string, opts ...SessionOption) Result {
	start := time.Now()

	s, err := e.NewSession(lang, opts...)
	if err != nil {
		return Result{Error: err, Duration: time.Since(start)}
	}
	defer s.Close()

	result := s.Run(ctx, []Batch{{Code: code, Async: strings.Contains(code, "await")}}, nil)
	result.Duration = time.Since(start)
	return result
}

// getCompiled returns a cached compiled module, compiling if necessary.
func (e *Executor) getCompiled(ctx context.Context, lang Language) (wazero.CompiledModule, error) {
	name := lang.Name()

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrSessionClosed
	}
	if compiled, ok := e.compiled[name]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if compiled, ok := e.compiled[name]; ok {
		return compiled, nil
	}

	start := time.Now()
	compiled, err := e.runtime.CompileModule(ctx, lang.Module())
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	e.logger.Debug("compiled module", "language", name, "duration", time.Since(start))

	e.compiled[name] = compiled
	return compiled, nil
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		err = errors.Join(err, e.cache.Close(ctx))
	}
	return err
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "scratchpad")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "scratchpad")
	}
	return filepath.Join(os.TempDir(), "scratchpad-cache")
}
