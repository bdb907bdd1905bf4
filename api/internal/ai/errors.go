package ai

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one of the four classified failure kinds surfaced to callers.
type Kind string

const (
	KindConnection Kind = "AI_CONNECTION_FAILED"
	KindAuth       Kind = "AI_AUTH_ERROR"
	KindResponse   Kind = "AI_RESPONSE_ERROR"
	KindUnknown    Kind = "AI_UNKNOWN_ERROR"
)

// Retryable reports whether a failure of this kind may go away on its own.
func (k Kind) Retryable() bool { return k == KindConnection }

// Error carries the classified kind together with the upstream cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// Errorf builds an already classified error.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// classification is the substring table, checked top to bottom against the
// lower-cased message. The first matching row wins.
var classification = []struct {
	kind    Kind
	needles []string
}{
	{KindConnection, []string{"fetch failed", "network", "connect", "dial tcp", "connection reset", "i/o timeout", "tls handshake", "no such host", "unexpected eof"}},
	{KindResponse, []string{"invalid json", "parse"}},
	{KindAuth, []string{"api key", "unauthorized", "401", "permission denied", "api_key_invalid"}},
}

// Classify maps an arbitrary upstream error onto a Kind.
// Errors that already carry a Kind keep it.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	msg := strings.ToLower(err.Error())
	for _, row := range classification {
		for _, n := range row.needles {
			if strings.Contains(msg, n) {
				return row.kind
			}
		}
	}
	return KindUnknown
}

// Wrap classifies err and returns it as *Error. Nil stays nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Kind: Classify(err), Err: err}
}

// KindOf is Classify under a name that reads better at call sites.
func KindOf(err error) Kind { return Classify(err) }
