// Package errtag defines the error-kind taxonomy shared by every service in
// this module, replacing ad hoc string matching at call sites with an
// explicit classification tag attached to each error.
package errtag

import (
	"context"
	"errors"

	"tradecore/pkg/circuitbreaker"
)

// Kind is one of the seven recognized error classifications.
type Kind string

const (
	Validation         Kind = "VALIDATION"
	Deserialization    Kind = "DESERIALIZATION"
	DownstreamTransient Kind = "DOWNSTREAM_TRANSIENT"
	DownstreamPermanent Kind = "DOWNSTREAM_PERMANENT"
	Timeout            Kind = "TIMEOUT"
	CircuitOpen        Kind = "CIRCUIT_OPEN"
	Internal           Kind = "INTERNAL"
)

// tagged wraps an error with an explicit Kind, preserving the original
// error for unwrapping.
type tagged struct {
	kind Kind
	err  error
}

func (t *tagged) Error() string { return string(t.kind) + ": " + t.err.Error() }
func (t *tagged) Unwrap() error { return t.err }

// Tag attaches kind to err. A nil err returns nil.
func Tag(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &tagged{kind: kind, err: err}
}

// Classify inspects err and returns its Kind. Errors produced by Tag
// report their tagged kind directly; errors from known collaborator
// packages (circuitbreaker, context deadline) are mapped to the
// appropriate kind; anything else classifies as Internal.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var t *tagged
	if errors.As(err, &t) {
		return t.kind
	}
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return CircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, context.Canceled):
		return Timeout
	default:
		return Internal
	}
}

// Retryable reports whether an error of this Kind is worth retrying by the
// caller (as opposed to being routed straight to the DLQ).
func (k Kind) Retryable() bool {
	switch k {
	case DownstreamTransient, Timeout, CircuitOpen:
		return true
	default:
		return false
	}
}
