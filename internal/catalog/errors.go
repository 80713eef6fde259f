package catalog

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the closed set of failures the catalog HTTP layer reports.
type ErrorKind int

const (
	KindUnauthorized ErrorKind = iota + 1
	KindRateLimited
	KindTransient
	KindExhausted
	KindMalformed
)

var (
	ErrUnauthorized = errors.New("catalog: unauthorized")
	ErrRateLimited  = errors.New("catalog: rate limited")
	ErrTransient    = errors.New("catalog: transient failure")
	ErrExhausted    = errors.New("catalog: retries exhausted")
	ErrMalformed    = errors.New("catalog: malformed response")
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindExhausted:
		return "exhausted"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindRateLimited:
		return ErrRateLimited
	case KindTransient:
		return ErrTransient
	case KindExhausted:
		return ErrExhausted
	case KindMalformed:
		return ErrMalformed
	default:
		return nil
	}
}

// APIError is returned by every Client call that fails. Match it with
// errors.Is against the Err* sentinels or errors.As to read the details.
type APIError struct {
	Kind       ErrorKind
	Status     int           // last HTTP status, 0 when no response arrived
	RetryAfter time.Duration // set for KindRateLimited
	Err        error         // underlying cause, may itself be an *APIError
}

func (e *APIError) Error() string {
	msg := "catalog " + e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf extracts the outermost ErrorKind from err, or 0 when err is not an *APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}
