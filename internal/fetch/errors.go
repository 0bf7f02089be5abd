package fetch

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a fetch failure
type Kind int

const (
	KindUnknown Kind = iota
	KindPolicyViolation
	KindTransient
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindPolicyViolation:
		return "policy_violation"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinel errors matched with errors.Is
var (
	ErrPolicyViolation = errors.New("outbound policy violation")
	ErrTransient       = errors.New("transient fetch failure")
	ErrNotFound        = errors.New("not found")
)

// Error describes a failed fetch
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Kind, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *Error) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindPolicyViolation:
		return ErrPolicyViolation
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrTransient
	}
}

// PolicyViolation creates a policy violation error
func PolicyViolation(rawURL, reason string) *Error {
	return &Error{Kind: KindPolicyViolation, URL: rawURL, Reason: reason}
}

// Transient creates a retryable error
func Transient(rawURL string, status int, err error) *Error {
	return &Error{Kind: KindTransient, URL: rawURL, StatusCode: status, Err: err}
}

// NotFound creates a not-found error
func NotFound(rawURL, reason string) *Error {
	return &Error{Kind: KindNotFound, URL: rawURL, StatusCode: 404, Reason: reason}
}

// KindOf classifies any error returned by a fetch or a source client.
// Deadlines and unclassified errors are treated as transient.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrPolicyViolation):
		return KindPolicyViolation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindTransient
	}
}

// IsRetryable reports whether err should be retried
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindTransient && !errors.Is(err, context.Canceled)
}
