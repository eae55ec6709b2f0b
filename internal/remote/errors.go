package remote

import (
	"context"
	"errors"
	"net"

	"go.mongodb.org/mongo-driver/mongo"
)

// Kind classifies a remote store failure so the sync engine can pick a
// recovery strategy per class instead of treating every failure the same.
type Kind int

const (
	// KindTransient: network error, timeout, throttling. Retry with backoff.
	KindTransient Kind = iota
	// KindUnauthorized: credentials rejected. Pause sync and request re-auth.
	KindUnauthorized
	// KindConflict: remote copy advanced past the local base revision.
	KindConflict
	// KindFatal: malformed payload, schema mismatch. Abort, surface to user.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrNotFound is returned by Get when no document exists.
var ErrNotFound = errors.New("remote: document not found")

// Error wraps a remote failure with its classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return "remote (" + e.Kind.String() + "): " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, err error) *Error { return &Error{Kind: kind, Err: err} }

// KindOf extracts the classification from an error chain.
// Unwrapped errors default to transient: retrying an actually-fatal error is
// bounded by max attempts, while dropping a retryable write loses data.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransient
}

// classify maps driver-level errors onto the taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr),
		mongo.IsTimeout(err),
		mongo.IsNetworkError(err):
		return NewError(KindTransient, err)
	case isAuthError(err):
		return NewError(KindUnauthorized, err)
	case mongo.IsDuplicateKeyError(err):
		return NewError(KindConflict, err)
	default:
		return NewError(KindFatal, err)
	}
}

// isAuthError matches the Mongo server's authentication failure codes.
func isAuthError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// 13 = Unauthorized, 18 = AuthenticationFailed
		return cmdErr.Code == 13 || cmdErr.Code == 18
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == 13 {
				return true
			}
		}
	}
	return false
}
