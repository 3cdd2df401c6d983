// Package traceerr implements the structured error taxonomy of spec §7.
//
// This is the concrete type the teacher's perffile/reader.go left as a
// TODO ("Type for file format errors."): every fallible operation in the
// byte-view layer and the two trace-container readers returns an *Error
// (or wraps one), so a caller can errors.As to recover the Kind and, for
// container-level failures, the buffer index or event key that caused it.
package traceerr

import "fmt"

// Kind is one of the error categories of spec §7.
type Kind int

const (
	// FileOpen indicates the underlying file could not be opened.
	FileOpen Kind = iota
	// Truncated indicates a required number of bytes could not be read.
	Truncated
	// MalformedContainer indicates a container-level invariant was
	// violated (bad magic, inconsistent header sizes, buffer size
	// overflow, sequence number or CPU index out of range, compressed
	// length mismatch).
	MalformedContainer
	// MalformedRecord indicates a record slice is smaller than its
	// declared size, an unknown trace-header type appeared, or a
	// required field is absent.
	MalformedRecord
	// UnsupportedTrace indicates the trace uses a container feature the
	// core does not implement.
	UnsupportedTrace
	// Cancelled indicates cooperative cancellation ended the operation.
	// It is reported distinctly from the other kinds so callers can
	// finalize UI without treating it as a failure.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case FileOpen:
		return "FileOpen"
	case Truncated:
		return "Truncated"
	case MalformedContainer:
		return "MalformedContainer"
	case MalformedRecord:
		return "MalformedRecord"
	case UnsupportedTrace:
		return "UnsupportedTrace"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is a structured error carrying a Kind plus enough context to name
// the buffer index or event key that failed, per spec §7's propagation
// policy.
type Error struct {
	Kind Kind
	// BufferIndex is the zero-based index of the offending buffer, or -1
	// if not applicable.
	BufferIndex int
	// EventKey names the (provider, type, version) or (guid, id,
	// version) that failed to decode, or "" if not applicable.
	EventKey string
	Cause    string
	Wrapped  error
}

func (e *Error) Error() string {
	s := e.Kind.String() + ": " + e.Cause
	if e.BufferIndex >= 0 {
		s = fmt.Sprintf("%s (buffer %d)", s, e.BufferIndex)
	}
	if e.EventKey != "" {
		s = fmt.Sprintf("%s (event %s)", s, e.EventKey)
	}
	return s
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Newf builds an *Error with no buffer/event context.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, BufferIndex: -1, Cause: fmt.Sprintf(format, args...)}
}

// WithBuffer returns a copy of e with BufferIndex set.
func (e *Error) WithBuffer(index int) *Error {
	e2 := *e
	e2.BufferIndex = index
	return &e2
}

// WithEventKey returns a copy of e with EventKey set.
func (e *Error) WithEventKey(key string) *Error {
	e2 := *e
	e2.EventKey = key
	return &e2
}

// Wrap attaches an underlying cause, preserved for errors.Unwrap.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, BufferIndex: -1, Cause: fmt.Sprintf(format, args...), Wrapped: cause}
}

// IsKind reports whether err is a *Error of the given kind, unwrapping
// through any wrapper errors.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if te, ok := err.(*Error); ok {
			return te.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
