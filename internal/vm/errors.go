package vm

import (
	"errors"
	"fmt"
	"strings"
)

var errStackOverflow = errors.New("stack overflow")
var errNoMatch = errors.New("no match arm matched")

func errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// TraceEntry is one frame of a RuntimeError's stack trace.
type TraceEntry struct {
	Block string
	Pos   Pos
}

// RuntimeError is a fatal error raised while a program runs. Pos is the
// position of the failing instruction; Trace lists the live frames from
// innermost to outermost.
type RuntimeError struct {
	Message string
	Pos     Pos
	Trace   []TraceEntry
	VMID    string
	cause   error
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "runtime error at %s: %s", e.Pos, e.Message)
	if len(e.Trace) > 0 {
		sb.WriteString("\nStack trace:")
		for _, t := range e.Trace {
			fmt.Fprintf(&sb, "\n  at %s:%s", t.Block, t.Pos)
		}
	}
	return sb.String()
}

func (e *RuntimeError) Unwrap() error { return e.cause }

// IsStackOverflow reports whether err was raised by exceeding the frame
// limit.
func IsStackOverflow(err error) bool {
	return errors.Is(err, errStackOverflow)
}
