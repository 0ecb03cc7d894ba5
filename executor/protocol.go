package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/caffeineduck/scratchpad/hostfunc"
)

// Guest to host frames on stderr. Each payload is a JSON object and the
// frame ends at the next NUL byte.
const (
	frameStart   = "\x00SCRATCH_"
	readySignal  = "\x00SCRATCH_READY\x00"
	eventPrefix  = "\x00SCRATCH_EVENT:"
	callPrefix   = "\x00SCRATCH_CALL:"
	donePrefix   = "\x00SCRATCH_DONE:"
	frameSuffix  = "\x00"
	maxRawLine   = 64 << 10
	rawLineLimit = "... (truncated)"
)

type messageType int

const (
	messageNone messageType = iota
	messageReady
	messageEvent
	messageCall
	messageDone
)

var framePrefixes = []struct {
	prefix string
	kind   messageType
}{
	{readySignal, messageReady},
	{eventPrefix, messageEvent},
	{callPrefix, messageCall},
	{donePrefix, messageDone},
}

// findNextMessage returns the offset and type of the earliest frame in content.
func findNextMessage(content string) (int, messageType) {
	best, kind := -1, messageNone
	for _, f := range framePrefixes {
		if idx := strings.Index(content, f.prefix); idx != -1 && (best == -1 || idx < best) {
			best, kind = idx, f.kind
		}
	}
	return best, kind
}

// extractMessage returns the payload of the frame starting at idx and the
// content that follows it. ok is false while the frame is incomplete.
func extractMessage(content string, idx int, prefix string) (payload, remaining string, ok bool) {
	start := idx + len(prefix)
	end := strings.Index(content[start:], frameSuffix)
	if end == -1 {
		return "", content[idx:], false
	}
	return content[start : start+end], content[start+end+len(frameSuffix):], true
}

// partialFrame returns the offset of a trailing frame start that has not
// been fully written yet, or len(content).
func partialFrame(content string) int {
	idx := strings.LastIndexByte(content, 0)
	if idx == -1 {
		return len(content)
	}
	tail := content[idx:]
	if strings.HasPrefix(frameStart, tail) || strings.HasPrefix(tail, frameStart) {
		return idx
	}
	return len(content)
}

type callRequest struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type doneMessage struct {
	ID      int    `json:"id"`
	OK      bool   `json:"ok"`
	Value   string `json:"value,omitempty"`
	Type    string `json:"type,omitempty"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// sessionProtocol intercepts guest stderr. Frames become events, host calls
// and completions; everything else is raw stderr and is reported as
// console error output of the running submission.
type sessionProtocol struct {
	registry    *hostfunc.Registry
	stdinWriter io.Writer
	logger      *slog.Logger

	buf bytes.Buffer
	raw map[EventKind]*strings.Builder

	execID  int
	handler Handler
	callCtx context.Context

	readyCh chan struct{}
	doneCh  chan doneMessage
	ready   bool

	mu      sync.Mutex
	writeMu sync.Mutex
}

func newSessionProtocol(registry *hostfunc.Registry, stdinWriter io.Writer, logger *slog.Logger) *sessionProtocol {
	return &sessionProtocol{
		registry:    registry,
		stdinWriter: stdinWriter,
		logger:      logger,
		raw:         make(map[EventKind]*strings.Builder),
		callCtx:     context.Background(),
		readyCh:     make(chan struct{}),
		doneCh:      make(chan doneMessage, 1),
	}
}

func (p *sessionProtocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)
	for p.next() {
	}
	return len(data), nil
}

// next consumes one frame or run of raw text from the buffer.
func (p *sessionProtocol) next() bool {
	content := p.buf.String()
	if content == "" {
		return false
	}

	idx, kind := findNextMessage(content)
	if kind == messageNone {
		keep := partialFrame(content)
		p.rawText(EventError, content[:keep])
		p.buf.Reset()
		p.buf.WriteString(content[keep:])
		return false
	}

	if idx > 0 {
		p.rawText(EventError, content[:idx])
		content = content[idx:]
	}

	if kind == messageReady {
		p.buf.Reset()
		p.buf.WriteString(content[len(readySignal):])
		if !p.ready {
			p.ready = true
			close(p.readyCh)
		}
		return true
	}

	prefix := eventPrefix
	switch kind {
	case messageCall:
		prefix = callPrefix
	case messageDone:
		prefix = donePrefix
	}
	payload, remaining, ok := extractMessage(content, 0, prefix)
	p.buf.Reset()
	p.buf.WriteString(remaining)
	if !ok {
		return false
	}

	switch kind {
	case messageEvent:
		p.handleEvent(payload)
	case messageCall:
		p.handleCall(payload)
	case messageDone:
		p.handleDone(payload)
	}
	return true
}

func (p *sessionProtocol) handleEvent(payload string) {
	var ev guestEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		p.logger.Debug("malformed event frame", "error", err)
		return
	}
	if ev.ID != p.execID || p.handler == nil {
		return
	}
	p.flushRaw()
	p.handler(ev.Event)
}

func (p *sessionProtocol) handleCall(payload string) {
	var req callRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		go p.respond(callResponse{Error: "invalid call format"})
		return
	}
	ctx := p.callCtx
	// Execute and respond in a goroutine; the guest is blocked in this Write
	// until it reads the response.
	go func() {
		p.respond(p.executeCall(ctx, req))
	}()
}

func (p *sessionProtocol) handleDone(payload string) {
	var msg doneMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		p.logger.Debug("malformed done frame", "error", err)
		return
	}
	if msg.ID != p.execID {
		return
	}
	p.flushRaw()
	select {
	case p.doneCh <- msg:
	default:
	}
}

func (p *sessionProtocol) executeCall(ctx context.Context, req callRequest) callResponse {
	result, err := p.registry.Call(ctx, req.Fn, req.Args)
	if err != nil {
		p.logger.Debug("host call failed", "fn", req.Fn, "error", err)
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: result}
}

func (p *sessionProtocol) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal: failed to marshal response"}`)
	}
	p.send(append(data, '\n'))
}

func (p *sessionProtocol) send(line []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.stdinWriter.Write(line)
	return err
}

// rawText buffers guest output that is not part of a frame and emits one
// event per complete line.
func (p *sessionProtocol) rawText(kind EventKind, text string) {
	if text == "" {
		return
	}
	b := p.raw[kind]
	if b == nil {
		b = &strings.Builder{}
		p.raw[kind] = b
	}
	for text != "" {
		i := strings.IndexByte(text, '\n')
		if i == -1 {
			if b.Len() < maxRawLine {
				b.WriteString(text)
			}
			return
		}
		if b.Len() < maxRawLine {
			b.WriteString(text[:i])
		} else {
			b.WriteString(rawLineLimit)
		}
		p.emitRaw(kind, b.String())
		b.Reset()
		text = text[i+1:]
	}
}

func (p *sessionProtocol) flushRaw() {
	for _, kind := range []EventKind{EventLog, EventError} {
		if b := p.raw[kind]; b != nil && b.Len() > 0 {
			p.emitRaw(kind, b.String())
			b.Reset()
		}
	}
}

func (p *sessionProtocol) emitRaw(kind EventKind, line string) {
	if p.handler == nil {
		p.logger.Debug("guest output outside submission", "stream", kind, "text", line)
		return
	}
	p.handler(Event{Kind: kind, Args: []string{line}})
}

// begin routes frames tagged with id to handler until end is called.
func (p *sessionProtocol) begin(ctx context.Context, id int, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.doneCh:
	default:
	}
	p.execID = id
	p.handler = handler
	p.callCtx = ctx
}

func (p *sessionProtocol) end() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.flushRaw()
	p.handler = nil
	p.callCtx = context.Background()
}

func (p *sessionProtocol) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *sessionProtocol) Done() <-chan doneMessage {
	return p.doneCh
}

// stdoutWriter turns guest stdout into console log events.
type stdoutWriter struct {
	p *sessionProtocol
}

func (w stdoutWriter) Write(data []byte) (int, error) {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	w.p.rawText(EventLog, string(data))
	return len(data), nil
}
