package source

import (
	"errors"
	"fmt"

	"TrackHound/model"
)

// ErrorKind classifies an adapter failure. The aggregator uses the kind to
// decide whether a failure should decay the source's health score, and the
// service surface maps kinds to response codes.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindTransient covers network failures and timeouts. The executor
	// retries them before they ever surface.
	KindTransient
	// KindRateLimited means upstream 429 survived the executor's backoff.
	KindRateLimited
	// KindNotFound means the entity does not exist upstream. Never retried.
	KindNotFound
	// KindUnavailable means the entity exists but has no usable stream.
	KindUnavailable
	// KindAuthFailed means the adapter's credentials were rejected.
	KindAuthFailed
)

// String returns the wire name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindAuthFailed:
		return "authentication_failed"
	default:
		return "unknown"
	}
}

// Error is the typed failure every adapter operation returns.
type Error struct {
	Source model.TrackSource
	Op     string
	Kind   ErrorKind
	// Status holds the upstream HTTP status when one was received.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Source, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a typed adapter error.
func E(src model.TrackSource, op string, kind ErrorKind, err error) *Error {
	return &Error{Source: src, Op: op, Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from an error chain, KindUnknown when the
// chain carries no typed adapter error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// StatusOf extracts the upstream HTTP status from an error chain, zero when
// none was recorded.
func StatusOf(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

func IsNotFound(err error) bool    { return KindOf(err) == KindNotFound }
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }
func IsTransient(err error) bool   { return KindOf(err) == KindTransient }
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }
func IsAuthFailed(err error) bool  { return KindOf(err) == KindAuthFailed }
