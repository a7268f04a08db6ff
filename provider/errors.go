package provider

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("provider: resource not found")
	ErrUnauthorized = errors.New("provider: credentials rejected")
	ErrRejected     = errors.New("provider: request rejected")
	ErrUnavailable  = errors.New("provider: service unavailable")
	// ErrOutcomeUnknown means a write may or may not have been applied upstream.
	ErrOutcomeUnknown = errors.New("provider: write outcome unknown")
	ErrDecode         = errors.New("provider: malformed response")
)

// APIError describes a failed provider call. Err is one of the sentinels above.
type APIError struct {
	Op       string
	Method   string
	Status   int
	Messages []string
	Err      error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Op, e.Method)
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if len(e.Messages) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Messages, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether retrying the same call later may succeed without changes.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrOutcomeUnknown)
}
