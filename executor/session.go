package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/scratchpad/hostfunc"
	"github.com/tetratelabs/wazero"
)

// Batch is one unit of source evaluated as a single script in the guest.
type Batch struct {
	Code  string `json:"code"`
	Async bool   `json:"async,omitempty"`
}

// Session is a long-lived interpreter instance. Global bindings made by one
// Run are visible to the next. Runs are serialized.
type Session struct {
	exec     *Executor
	lang     Language
	cfg      sessionConfig
	registry *hostfunc.Registry
	logger   *slog.Logger

	stdin       *io.PipeWriter
	stdinReader *io.PipeReader
	protocol    *sessionProtocol
	cancel      context.CancelFunc
	exited      chan struct{}
	exitErr     error // set before exited is closed
	execID      int

	mu       sync.Mutex
	execMu   sync.Mutex
	closed   bool
	started  bool
	startErr error
}

func (e *Executor) NewSession(lang Language, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = e.logger
	}

	s := &Session{
		exec:     e,
		lang:     lang,
		cfg:      cfg,
		registry: e.registry.Clone(),
		logger:   logger.With("language", lang.Name()),
		exited:   make(chan struct{}),
	}

	if err := s.start(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Modules returns the names require resolves in this session. "host" exposes
// the functions registered on the executor itself.
func (s *Session) Modules() []string {
	modules := []string{"path", "util", "os", "crypto"}
	if len(s.cfg.mounts) > 0 {
		modules = append(modules, "fs")
	}
	if s.cfg.kvEnabled {
		modules = append(modules, "kv")
	}
	if s.exec.registry != nil && len(s.exec.registry.List()) > 0 {
		modules = append(modules, "host")
	}
	return modules
}

func (s *Session) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	compiled, err := s.exec.getCompiled(context.Background(), s.lang)
	if err != nil {
		s.startErr = err
		return err
	}

	s.registerHostFunctions()

	s.stdinReader, s.stdin = io.Pipe()
	s.protocol = newSessionProtocol(s.registry, s.stdin, s.logger)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(stdoutWriter{s.protocol}).
		WithStderr(s.protocol).
		WithStdin(s.stdinReader).
		WithArgs(s.lang.Args(s.lang.Runtime())...).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithName("")

	for k, v := range s.guestEnv() {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	// The instance runs until its context is cancelled or the guest exits.
	// The runtime closes modules on context done, which is how a runaway
	// submission is stopped.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		_, err := s.exec.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		s.stdinReader.Close()
		s.exitErr = err
		close(s.exited)
		s.logger.Debug("session exited", "error", err)
	}()

	timer := time.NewTimer(s.cfg.startTimeout)
	defer timer.Stop()

	select {
	case <-s.protocol.Ready():
		s.started = true
		s.logger.Debug("session ready")
		return nil
	case <-s.exited:
		s.startErr = fmt.Errorf("start session: guest exited: %v", s.exitErr)
		return s.startErr
	case <-timer.C:
		s.startErr = errors.New("session start timeout")
		return s.startErr
	}
}

func (s *Session) guestEnv() map[string]string {
	env := make(map[string]string, len(s.cfg.env)+4)
	for k, v := range s.cfg.env {
		env[k] = v
	}
	env["SCRATCH_SESSION"] = "1"
	env["SCRATCH_MODULES"] = strings.Join(s.Modules(), ",")
	env["SCRATCH_TIMER_MIN"] = strconv.FormatInt(s.cfg.timerMin.Milliseconds(), 10)
	env["SCRATCH_TIMER_MAX"] = strconv.FormatInt(s.cfg.timerMax.Milliseconds(), 10)
	if len(s.cfg.allowedHosts) > 0 {
		env["SCRATCH_FETCH"] = "1"
	}
	return env
}

func (s *Session) registerHostFunctions() {
	s.registry.Register("time_now", func(ctx context.Context, args map[string]any) (any, error) {
		return float64(time.Now().UnixNano()) / 1e9, nil
	})

	hostfunc.Path{}.Register(s.registry)
	hostfunc.Crypto{}.Register(s.registry)
	hostfunc.NewOSInfo().Register(s.registry)

	if len(s.cfg.allowedHosts) > 0 {
		hostfunc.NewHTTP(hostfunc.HTTPConfig{
			AllowedHosts:   s.cfg.allowedHosts,
			MaxURLLength:   s.cfg.httpMaxURLLength,
			MaxBodySize:    s.cfg.httpMaxBodySize,
			RequestTimeout: s.cfg.httpTimeout,
		}).Register(s.registry)
	}

	if len(s.cfg.mounts) > 0 {
		hostfunc.NewFS(s.cfg.mounts, s.cfg.fsOptions...).Register(s.registry)
	}

	if s.cfg.kvEnabled {
		kv := s.cfg.kvStore
		if kv == nil {
			kv = hostfunc.NewKV(hostfunc.DefaultKVConfig(), s.cfg.kvOptions...)
		}
		kv.Register(s.registry)
	}
}

type execCommand struct {
	Type    string  `json:"type"`
	ID      int     `json:"id,omitempty"`
	Batches []Batch `json:"batches,omitempty"`
}

// Run evaluates batches in order in the session's global scope. Events are
// passed to handler, which may be nil, as they are produced. The completion
// value of the last batch becomes the result value.
//
// If the run exceeds the session timeout or ctx ends first, the guest is
// stopped and the session can no longer be used.
func (s *Session) Run(ctx context.Context, batches []Batch, handler Handler) Result {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	start := time.Now()

	s.mu.Lock()
	closed, started, startErr := s.closed, s.started, s.startErr
	s.mu.Unlock()

	if closed {
		return Result{Error: ErrSessionClosed, Duration: time.Since(start)}
	}
	if !started {
		if startErr == nil {
			startErr = ErrNotStarted
		}
		return Result{Error: startErr, Duration: time.Since(start)}
	}
	select {
	case <-s.exited:
		return Result{Error: fmt.Errorf("%w: guest exited", ErrSessionClosed), Duration: time.Since(start)}
	default:
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	var output strings.Builder
	collect := func(ev Event) {
		if ev.IsConsole() {
			output.WriteString(ev.Text())
			output.WriteByte('\n')
		}
		if handler != nil {
			handler(ev)
		}
	}

	s.execID++
	s.protocol.begin(ctx, s.execID, collect)
	defer s.protocol.end()

	cmd, err := json.Marshal(execCommand{Type: "exec", ID: s.execID, Batches: batches})
	if err != nil {
		return Result{Error: fmt.Errorf("encode command: %w", err), Duration: time.Since(start)}
	}

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- s.protocol.send(append(cmd, '\n'))
	}()

	result := func(r Result) Result {
		s.protocol.end()
		r.Output = output.String()
		r.Duration = time.Since(start)
		return r
	}

	for {
		select {
		case err := <-writeErr:
			if err != nil {
				return result(Result{Error: fmt.Errorf("write command: %w", err)})
			}
			writeErr = nil
		case msg := <-s.protocol.Done():
			return result(s.complete(msg))
		case <-s.exited:
			return result(Result{Error: fmt.Errorf("%w: guest exited", ErrSessionClosed)})
		case <-ctx.Done():
			s.kill()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.logger.Info("submission timed out", "timeout", s.cfg.timeout)
				return result(Result{Error: fmt.Errorf("%w after %v", ErrTimeout, s.cfg.timeout)})
			}
			return result(Result{Error: fmt.Errorf("run cancelled: %w", ctx.Err())})
		}
	}
}

func (s *Session) complete(msg doneMessage) Result {
	if msg.OK {
		return Result{Value: msg.Value, Type: msg.Type}
	}
	gerr := &GuestError{Name: msg.Name, Message: msg.Message, Stack: msg.Stack, Line: msg.Line}
	if line, ok := lineFromStack(msg.Stack); ok {
		gerr.Line = line
	}
	return Result{Error: gerr}
}

// kill stops the guest immediately and marks the session closed.
func (s *Session) kill() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.stdin != nil {
		s.stdin.CloseWithError(ErrSessionClosed)
	}
}

// Alive reports whether the session can accept another Run.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.started {
		return false
	}
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Close pipes directly rather than sending an exit command; the guest
	// may be blocked. Closing the reader gives the guest EOF.
	if s.stdinReader != nil {
		s.stdinReader.Close()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
