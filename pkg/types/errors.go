package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies evaluation failures.
type ErrorKind string

const (
	// ErrKindUnsupportedCapability marks a scoring mode this engine can
	// never serve. Permanent; callers should select a different metric.
	ErrKindUnsupportedCapability ErrorKind = "unsupported_capability"
	// ErrKindRemoteCall marks a transport or provider failure during a
	// generate call.
	ErrKindRemoteCall ErrorKind = "remote_call_failure"
	// ErrKindTokenization marks a failure propagated from the tokenizer.
	ErrKindTokenization ErrorKind = "tokenization_failure"
	// ErrKindEndpointNotReady marks an endpoint that did not become ready
	// within the bounded wait.
	ErrKindEndpointNotReady ErrorKind = "endpoint_not_ready"
)

// EvalError wraps a failure with enough context to locate the offending
// input: the request kind and the index into the caller's request slice.
// Index is -1 when the failure is not scoped to a single request.
type EvalError struct {
	Kind        ErrorKind
	RequestKind RequestKind
	Index       int
	Err         error
}

func (e *EvalError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: %s request %d: %v", e.Kind, e.RequestKind, e.Index, e.Err)
	}
	if e.RequestKind != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.RequestKind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// IsKind reports whether err is (or wraps) an EvalError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ee *EvalError
	return errors.As(err, &ee) && ee.Kind == kind
}
