// Package apierr defines the canonical error kinds shared across
// adapters, the dispatcher, the tool runtime and the agent loop (§7).
// Adapters classify whatever the wire actually returned (HTTP status
// codes, provider-specific error bodies) into one of these kinds so
// callers can branch on Kind without knowing which provider they're
// talking to.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the six error categories spec.md §7 names.
type Kind string

const (
	// KindOverflow: the request's context window was exceeded. Retrying
	// with the same messages will not succeed; the caller should compact
	// and retry.
	KindOverflow Kind = "overflow"
	// KindRateLimited: provider asked the caller to back off.
	// Retryable after a delay (provider-supplied or exponential backoff).
	KindRateLimited Kind = "rate_limited"
	// KindTransport: network/connection failure, including a detected
	// stream stall. Retryable.
	KindTransport Kind = "transport"
	// KindAuth: credential rejected or missing. Not retryable without
	// caller intervention.
	KindAuth Kind = "auth"
	// KindInvalidRequest: the provider rejected the request shape itself
	// (bad schema, unsupported parameter). Not retryable without
	// changing the request.
	KindInvalidRequest Kind = "invalid_request"
	// KindAborted: the caller's context was canceled. Not an error to
	// surface to the model; it ends the turn.
	KindAborted Kind = "aborted"
)

// Error wraps an underlying error with a classified Kind and the
// responsible model/provider, letting dispatch.Dispatch and the agent
// loop branch without provider-specific type assertions.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
	// RetryAfterSeconds is set when the provider specified a backoff delay
	// (e.g. a Retry-After header), in seconds. Zero means "use default
	// backoff".
	RetryAfterSeconds int
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a classified apierr.Error.
func New(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// Retryable reports whether the dispatcher should retry the call that
// produced err without first compacting or asking the caller to fix
// anything.
func Retryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case KindRateLimited, KindTransport:
			return true
		}
	}
	return false
}
