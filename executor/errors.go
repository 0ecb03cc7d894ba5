package executor

import (
	"errors"
	"regexp"
	"strconv"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrTimeout       = errors.New("timeout")
	ErrNotStarted    = errors.New("session not started")
)

// GuestError is an exception raised by guest code and caught at the
// execution boundary. Line is the source line it was raised on, or 0.
type GuestError struct {
	Name    string
	Message string
	Stack   string
	Line    int
}

func (e *GuestError) Error() string {
	switch {
	case e.Name == "":
		return e.Message
	case e.Message == "":
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// SourceTag is the file name the guest engine reports for evaluated batches.
const SourceTag = "<evalScript>"

var stackLineRe = regexp.MustCompile(regexp.QuoteMeta(SourceTag) + `:(\d+)`)

// lineFromStack returns the first batch line in a guest stack trace.
func lineFromStack(stack string) (int, bool) {
	m := stackLineRe.FindStringSubmatch(stack)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
