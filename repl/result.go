package repl

import (
	"errors"
	"time"

	"github.com/caffeineduck/scratchpad/executor"
)

// Outcome distinguishes successful submissions from failed ones.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	if o == Failure {
		return "failure"
	}
	return "success"
}

// ExecutionResult is the single result reported for each submission.
//
// On Success, Value and Type describe the completion value of the last
// evaluated statement; HasValue is false when there is none. On Failure,
// Message describes the error and Line is the source line it was raised on,
// or 0 when unknown. ContextReset is set when the failure took the
// execution context down, as a timeout does, so every earlier binding is
// gone and the next submission starts from a fresh context.
type ExecutionResult struct {
	Outcome      Outcome       `json:"outcome"`
	Value        string        `json:"value,omitempty"`
	Type         string        `json:"type,omitempty"`
	HasValue     bool          `json:"has_value"`
	Message      string        `json:"message,omitempty"`
	Line         int           `json:"line,omitempty"`
	ContextReset bool          `json:"context_reset,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	Err          error         `json:"-"`
}

// OK reports whether the submission succeeded.
func (r ExecutionResult) OK() bool {
	return r.Outcome == Success
}

func successResult(res executor.Result) ExecutionResult {
	out := ExecutionResult{Outcome: Success, Duration: res.Duration}
	if res.HasValue() {
		out.Value = res.Value
		out.Type = res.Type
		out.HasValue = true
	}
	return out
}

func failureResult(err error, d time.Duration) ExecutionResult {
	out := ExecutionResult{Outcome: Failure, Message: err.Error(), Duration: d, Err: err}
	var gerr *executor.GuestError
	if errors.As(err, &gerr) {
		out.Line = gerr.Line
	}
	return out
}
