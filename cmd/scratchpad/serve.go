package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/scratchpad/executor"
	"github.com/caffeineduck/scratchpad/repl"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for scratchpad sessions",
	Long: `Start an HTTP server that hosts persistent scratchpad sessions.

Endpoints:
  POST   /execute              Evaluate once in a fresh context
  POST   /sessions             Create session, returns {"session_id":"..."}
  POST   /sessions/{id}/exec   Submit code, returns {"events":[...],"result":{...}}
  POST   /sessions/{id}/reset  Discard the session's bindings
  DELETE /sessions/{id}        Close session
  GET    /sessions/{id}/ws     WebSocket: send {"code":"..."}, receive events then result
  GET    /health               Health check`,
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Duration("session-ttl", 15*time.Minute, "Close sessions idle for this long")
	addSessionFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

type server struct {
	exec     *executor.Executor
	opts     []executor.SessionOption
	logger   *slog.Logger
	ttl      time.Duration
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*serverSession
}

type serverSession struct {
	manager  *repl.Manager
	lastUsed time.Time
}

func newServer(exec *executor.Executor, opts []executor.SessionOption, logger *slog.Logger, ttl time.Duration) *server {
	return &server{
		exec:     exec,
		opts:     opts,
		logger:   logger,
		ttl:      ttl,
		sessions: make(map[string]*serverSession),
	}
}

func (s *server) newManager() *repl.Manager {
	return repl.New(s.exec,
		repl.WithSessionOptions(s.opts...),
		repl.WithLogger(s.logger),
	)
}

func (s *server) create() string {
	id := generateSessionID()
	s.mu.Lock()
	s.sessions[id] = &serverSession{
		manager:  s.newManager(),
		lastUsed: time.Now(),
	}
	s.mu.Unlock()
	s.logger.Info("session created", "session", id)
	return id
}

func (s *server) get(id string) (*repl.Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	ss.lastUsed = time.Now()
	return ss.manager, true
}

func (s *server) close(id string) bool {
	s.mu.Lock()
	ss, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		ss.manager.Close()
		s.logger.Info("session closed", "session", id)
	}
	return ok
}

// sweep closes sessions idle longer than the TTL.
func (s *server) sweep(now time.Time) int {
	s.mu.Lock()
	var idle []*serverSession
	for id, ss := range s.sessions {
		if now.Sub(ss.lastUsed) > s.ttl {
			idle = append(idle, ss)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, ss := range idle {
		ss.manager.Close()
	}
	if len(idle) > 0 {
		s.logger.Info("closed idle sessions", "count", len(idle))
	}
	return len(idle)
}

func (s *server) cleanup(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *server) closeAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*serverSession)
	s.mu.Unlock()
	for _, ss := range sessions {
		ss.manager.Close()
	}
}

func generateSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type execRequest struct {
	Code    string `json:"code"`
	Timeout string `json:"timeout,omitempty"`
}

type execResponse struct {
	Events []executor.Event     `json:"events"`
	Result repl.ExecutionResult `json:"result"`
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("POST /sessions", s.handleCreate)
	mux.HandleFunc("POST /sessions/{id}/exec", s.handleExec)
	mux.HandleFunc("POST /sessions/{id}/reset", s.handleReset)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDelete)
	mux.HandleFunc("GET /sessions/{id}/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func decodeExec(r *http.Request) (execRequest, error) {
	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errors.New("invalid json")
	}
	if req.Code == "" {
		return req, errors.New("code required")
	}
	if req.Timeout != "" {
		if _, err := time.ParseDuration(req.Timeout); err != nil {
			return req, fmt.Errorf("invalid timeout %q", req.Timeout)
		}
	}
	return req, nil
}

// submitCollect runs req against m and collects its events. A request timeout
// only bounds the wait for a queued submission.
func submitCollect(ctx context.Context, m *repl.Manager, req execRequest) execResponse {
	if req.Timeout != "" {
		d, _ := time.ParseDuration(req.Timeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	resp := execResponse{Events: []executor.Event{}}
	resp.Result = m.Submit(ctx, req.Code, func(ev executor.Event) {
		resp.Events = append(resp.Events, ev)
	})
	return resp
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExec(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m := s.newManager()
	defer m.Close()
	writeJSON(w, submitCollect(r.Context(), m, req))
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, createSessionResponse{SessionID: s.create()})
}

func (s *server) handleExec(w http.ResponseWriter, r *http.Request) {
	m, ok := s.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	req, err := decodeExec(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, submitCollect(r.Context(), m, req))
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	m, ok := s.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err := m.Reset(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("reset failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if s.close(r.PathValue("id")) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Error(w, "session not found", http.StatusNotFound)
}

// wsMessage is a client request on the WebSocket.
type wsMessage struct {
	Code  string `json:"code,omitempty"`
	Reset bool   `json:"reset,omitempty"`
}

func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, ok := s.get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session", id, "error", err)
		return
	}
	defer conn.Close()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "session", id, "error", err)
			}
			return
		}
		if _, ok := s.get(id); !ok {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
			return
		}

		if msg.Reset {
			res := repl.ExecutionResult{Outcome: repl.Success}
			if err := m.Reset(r.Context()); err != nil {
				res = repl.ExecutionResult{Outcome: repl.Failure, Message: err.Error()}
			}
			if err := conn.WriteJSON(jsonLine{Result: &res}); err != nil {
				return
			}
			continue
		}

		// Events are pushed as they happen, before the result.
		var writeErr error
		res := m.Submit(r.Context(), msg.Code, func(ev executor.Event) {
			if writeErr == nil {
				writeErr = conn.WriteJSON(jsonLine{Event: &ev})
			}
		})
		if writeErr != nil {
			return
		}
		if err := conn.WriteJSON(jsonLine{Result: &res}); err != nil {
			return
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, exec, err := setup(cmd)
	if err != nil {
		return err
	}
	defer exec.Close()

	sessionOpts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv := newServer(exec, sessionOpts, logger, cfg.Serve.SessionTTL)
	defer srv.closeAll()
	go srv.cleanup(ctx)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Serve.Port),
		Handler: srv.routes(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "scratchpad server listening on %s\n", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
