// Package rpcerr defines the error kinds shared across the engine: loader
// failures, transport failures, protocol mismatches, and the internal
// invariant violations that are fatal to a session.
package rpcerr

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the kinds of failure the engine can surface.
// Callers should use errors.Is against these rather than comparing strings.
var (
	// ErrLoadFailed indicates a required blob could not be fetched after retries.
	ErrLoadFailed = errors.New("load failed")

	// ErrParseFailed indicates a blob did not match its expected tensor dtype/shape.
	ErrParseFailed = errors.New("parse failed")

	// ErrTransportFailed indicates a worker request could not be sent or produced no reply.
	ErrTransportFailed = errors.New("transport failed")

	// ErrProtocolFailed indicates a response kind did not match the request kind.
	ErrProtocolFailed = errors.New("protocol failed")

	// ErrInvariantViolation indicates an internal consistency invariant was broken
	// (shape, cache depth, or token-sequence prefix). It is fatal: the sequence
	// or caches are left in an undefined state.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrSamplerDegenerate indicates softmax produced no finite probability.
	ErrSamplerDegenerate = errors.New("sampler degenerate")
)

// wrapped pairs a sentinel with a formatted message so that errors.Is still
// matches the sentinel while the message carries call-specific context.
type wrapped struct {
	sentinel error
	msg      string
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.sentinel }

// Wrap annotates sentinel with a formatted message while preserving
// errors.Is matching against it.
func Wrap(sentinel error, format string, args ...any) error {
	return &wrapped{sentinel: sentinel, msg: fmt.Sprintf("%s: %s", sentinel.Error(), fmt.Sprintf(format, args...))}
}
