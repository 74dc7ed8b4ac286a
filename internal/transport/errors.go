package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure so stores can react without
// string-matching on messages.
type Kind int

const (
	// KindUnreachable means the availability probe failed on every endpoint.
	KindUnreachable Kind = iota
	// KindInvalidCredentials is a rejected login or registration.
	KindInvalidCredentials
	// KindUnauthorized is a 401 on an authenticated call, distinct from
	// a login failure.
	KindUnauthorized
	// KindNotFound is a 404.
	KindNotFound
	// KindServerError is any 5xx.
	KindServerError
	// KindMalformedResponse is a success body that cannot be decoded
	// even after normalization attempts.
	KindMalformedResponse
	// KindRequestFailed is the catch-all for other non-2xx responses
	// and network-level failures.
	KindRequestFailed
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindInvalidCredentials:
		return "invalid credentials"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not found"
	case KindServerError:
		return "server error"
	case KindMalformedResponse:
		return "malformed response"
	default:
		return "request failed"
	}
}

// Error carries the failure kind plus the HTTP status and raw body for
// diagnostics. Body is kept verbatim so callers can log what the
// server actually said.
type Error struct {
	Kind   Kind
	Status int
	Body   string
	Op     string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// IsKind reports whether err is (or wraps) a transport Error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == kind
}

// classify maps an HTTP status on an authenticated call to an error
// kind per the shared taxonomy.
func classify(status int) Kind {
	switch {
	case status == 401:
		return KindUnauthorized
	case status == 404:
		return KindNotFound
	case status >= 500:
		return KindServerError
	default:
		return KindRequestFailed
	}
}
