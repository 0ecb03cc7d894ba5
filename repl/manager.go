// Package repl manages the lifecycle of one interactive evaluation session.
//
// A [Manager] owns a single persistent execution context. Each submission is
// segmented, instrumented and evaluated against it, streaming console output
// and value traces to the caller as they happen:
//
//	m := repl.New(exec)
//	defer m.Close()
//
//	res := m.Submit(ctx, "const r = 5 + 3;\nr * 2", func(ev executor.Event) {
//	    fmt.Println(ev.Kind, ev.Label, ev.Text())
//	})
//
// Submissions are serialized in arrival order. A submission that times out
// tears the context down; the next one starts a fresh context.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/caffeineduck/scratchpad/executor"
	"github.com/caffeineduck/scratchpad/instrument"
	"github.com/caffeineduck/scratchpad/language/javascript"
	"golang.org/x/sync/semaphore"
)

// State is the lifecycle state of a Manager's execution context.
type State int

const (
	Uninitialized State = iota
	Active
	Resetting
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Resetting:
		return "resetting"
	}
	return "uninitialized"
}

var (
	ErrClosed    = errors.New("repl closed")
	ErrCancelled = errors.New("submission cancelled")
)

// Option configures a Manager.
type Option func(*Manager)

// WithLanguage sets the guest language. Defaults to JavaScript.
func WithLanguage(lang executor.Language) Option {
	return func(m *Manager) {
		m.lang = lang
	}
}

// WithSessionOptions sets the options every execution context is started
// with: timeouts, capabilities and limits.
func WithSessionOptions(opts ...executor.SessionOption) Option {
	return func(m *Manager) {
		m.sessionOpts = append(m.sessionOpts, opts...)
	}
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager serializes submissions against one persistent execution context.
type Manager struct {
	exec        *executor.Executor
	lang        executor.Language
	sessionOpts []executor.SessionOption
	logger      *slog.Logger
	sem         *semaphore.Weighted

	mu          sync.Mutex
	state       State
	session     *executor.Session
	generation  int
	submissions int
	closed      bool
}

// New returns a Manager in the Uninitialized state. The execution context
// is created by the first submission.
func New(exec *executor.Executor, opts ...Option) *Manager {
	m := &Manager{
		exec: exec,
		lang: javascript.New(),
		sem:  semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation counts execution contexts created so far. It changes on every
// reset and every recovery from a timeout.
func (m *Manager) Generation() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Submit evaluates code against the persistent context. Events are passed
// to handler, which may be nil, in execution order and before Submit
// returns. A caller still queued behind another submission when ctx ends
// gets a Failure without running.
func (m *Manager) Submit(ctx context.Context, code string, handler executor.Handler) ExecutionResult {
	start := time.Now()

	if err := m.acquire(ctx); err != nil {
		return failureResult(err, time.Since(start))
	}
	defer m.sem.Release(1)

	session, err := m.ensure()
	if err != nil {
		return failureResult(err, time.Since(start))
	}

	batches := batchesOf(instrument.Instrument(code))
	if len(batches) == 0 {
		return ExecutionResult{Outcome: Success, Duration: time.Since(start)}
	}

	m.mu.Lock()
	m.submissions++
	n := m.submissions
	m.mu.Unlock()

	res := session.Run(ctx, batches, handler)
	res.Duration = time.Since(start)

	if res.Error != nil {
		out := failureResult(res.Error, res.Duration)
		if !session.Alive() {
			m.discard(session, res.Error)
			out.ContextReset = true
		}
		m.logger.Debug("submission failed", "submission", n, "error", res.Error, "duration", res.Duration)
		return out
	}

	m.logger.Debug("submission succeeded", "submission", n, "duration", res.Duration)
	return successResult(res)
}

// Reset discards the execution context, with every binding and loaded
// module, and starts a fresh one. It waits for an in-flight submission.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	old := m.session
	m.session = nil
	m.state = Resetting
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	m.logger.Info("resetting context")
	if _, err := m.ensure(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Close shuts the execution context down. Later submissions fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.state = Uninitialized
	if m.session != nil {
		err := m.session.Close()
		m.session = nil
		return err
	}
	return nil
}

func (m *Manager) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.sem.Release(1)
		return ErrClosed
	}
	return nil
}

// ensure returns the live session, starting one if needed. The caller must
// hold the semaphore.
func (m *Manager) ensure() (*executor.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return m.session, nil
	}

	session, err := m.exec.NewSession(m.lang, m.sessionOpts...)
	if err != nil {
		m.state = Uninitialized
		return nil, fmt.Errorf("start context: %w", err)
	}
	m.session = session
	m.state = Active
	m.generation++
	m.logger.Info("context started", "language", m.lang.Name(), "generation", m.generation)
	return session, nil
}

// discard drops a session that can no longer run, returning the manager to
// Uninitialized.
func (m *Manager) discard(session *executor.Session, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != session {
		return
	}
	session.Close()
	m.session = nil
	m.state = Uninitialized
	m.logger.Info("context discarded", "reason", cause)
}

func batchesOf(p instrument.Program) []executor.Batch {
	var out []executor.Batch
	for _, b := range p.Batches() {
		out = append(out, executor.Batch{Code: b.Code, Async: b.Async})
	}
	return out
}
