package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a fetch failure for retry decisions.
type Kind int

const (
	// KindNetwork covers transport failures and upstream 5xx responses.
	KindNetwork Kind = iota
	// KindTimeout covers deadline and request timeouts.
	KindTimeout
	// KindRateLimited covers HTTP 429.
	KindRateLimited
	// KindPermanent covers 4xx misconfiguration; never retried.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindPermanent:
		return "permanent"
	default:
		return "network"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether err is a transient fetch failure.
func Retryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind != KindPermanent
	}
	return false
}

// ErrKind extracts the failure kind, defaulting to network for unclassified
// errors.
func ErrKind(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindNetwork
}

func statusError(status int, err error) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Status: status, Err: err}
	case status == http.StatusRequestTimeout:
		return &Error{Kind: KindTimeout, Status: status, Err: err}
	case status >= 400 && status < 500:
		return &Error{Kind: KindPermanent, Status: status, Err: err}
	default:
		return &Error{Kind: KindNetwork, Status: status, Err: err}
	}
}

func transportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

func permanentError(err error) *Error {
	return &Error{Kind: KindPermanent, Err: err}
}
