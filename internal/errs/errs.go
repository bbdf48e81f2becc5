// Package errs models the error taxonomy of spec.md §7 as a typed Kind
// instead of the teacher's substring-matching isTransientError heuristic
// (internal/orchestrator/handler.go), so callers can classify with
// errors.Is instead of parsing messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy kinds from spec.md §7, and implements error
// so it can be used directly as an errors.Is target:
// errors.Is(err, errs.TransientExternal).
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// TransientExternal covers network/5xx/timeout failures from Chat,
	// Embedder, Extractor, or VectorIndex. IsRetryable reports it as
	// retryable; the adapters under internal/adapters do not retry it.
	TransientExternal Kind = "transient_external"
	// RateLimited is identified by an explicit provider signal (429 /
	// rate-limit header). IsRetryable treats it like TransientExternal.
	RateLimited Kind = "rate_limited"
	// InputRejected covers unsupported MIME, oversize file, or missing blob.
	InputRejected Kind = "input_rejected"
	// SchemaViolation means LLM output could not be parsed where required.
	SchemaViolation Kind = "schema_violation"
	// StoragePostcondition means a vector upsert acknowledged fewer records
	// than expected.
	StoragePostcondition Kind = "storage_postcondition"
	// ConfigurationError means a required capability is missing or
	// misconfigured.
	ConfigurationError Kind = "configuration_error"
)

// Error wraps an underlying error with a Kind and the operation that
// produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errs.TransientExternal) match any *Error with that
// Kind, and errors.Is(err, otherErr) match same-Kind *Error targets too.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New wraps err with Kind and an operation label.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of reports the Kind of err if it (or something it wraps) is an *Error,
// and ok=false otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err's Kind should be retried with backoff
// per the propagation policy in spec.md §7.
func IsRetryable(err error) bool {
	k, ok := Of(err)
	if !ok {
		return false
	}
	return k == TransientExternal || k == RateLimited
}
