package value

import (
	"fmt"
	"hash/fnv"
	"runtime"
	"strings"
)

// ErrKind classifies errors that cross a context boundary.
type ErrKind string

const (
	// KindForeign is any error raised inside a callee context during
	// proxy dispatch.
	KindForeign ErrKind = "ForeignCallError"
	// KindAttribute is a missing attribute on a proxied value. Kept
	// distinct so callers can probe proxies safely.
	KindAttribute ErrKind = "AttributeLookupError"
	// KindUnload is an error from an unload callback during teardown.
	// Reported, never propagated.
	KindUnload ErrKind = "UnloadCallbackError"
)

// Error carries the full diagnostic payload of a failure across a context
// boundary: kind, message and the stack captured at the point of failure.
// It is both a Value and a Go error.
type Error struct {
	Kind    ErrKind
	Message string
	Stack   []string
}

func (e *Error) Type() Type      { return ERROR_OBJ }
func (e *Error) Inspect() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }
func (e *Error) Error() string   { return e.Inspect() }

func (e *Error) MapKey() MapKey {
	h := fnv.New64a()
	h.Write([]byte(e.Kind))
	h.Write([]byte{0})
	h.Write([]byte(e.Message))
	return MapKey{Type: e.Type(), Value: h.Sum64()}
}

// Stacktrace renders the captured frames, one per line.
func (e *Error) Stacktrace() string {
	var sb strings.Builder
	sb.WriteString(e.Inspect())
	for _, frame := range e.Stack {
		sb.WriteString("\n  at ")
		sb.WriteString(frame)
	}
	return sb.String()
}

// NewError creates a foreign error with the stack captured here.
func NewError(format string, a ...any) *Error {
	return newError(KindForeign, format, a...)
}

// NewAttributeError creates an attribute-lookup error.
func NewAttributeError(format string, a ...any) *Error {
	return newError(KindAttribute, format, a...)
}

// Capture converts any Go error into an *Error, preserving an existing
// *Error's diagnostics rather than re-wrapping it.
func Capture(err error) *Error {
	if err == nil {
		return nil
	}
	if verr, ok := err.(*Error); ok {
		return verr
	}
	return newError(KindForeign, "%s", err.Error())
}

// IsAttributeError reports whether err is an attribute-lookup failure.
func IsAttributeError(err error) bool {
	verr, ok := err.(*Error)
	return ok && verr.Kind == KindAttribute
}

func newError(kind ErrKind, format string, a ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, a...),
		Stack:   captureStack(3),
	}
}

func captureStack(skip int) []string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	var out []string
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			out = append(out, fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return out
}
