package videos

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrProviderUnavailable indicates the metadata provider is not configured.
	ErrProviderUnavailable = errors.New("video metadata provider unavailable")
	// ErrInvalidURL indicates the input is not a recognized media URL.
	ErrInvalidURL = errors.New("invalid media URL")
	// ErrFormatUnavailable indicates no rendition matched the selection policy.
	ErrFormatUnavailable = errors.New("no compatible stream available")
)

// DefaultRetryAfter is used when the upstream rate limits without a hint.
const DefaultRetryAfter = 60 * time.Second

// ErrorKind classifies resolver failures for the retry policy.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	default:
		return "transient"
	}
}

// ResolveError is the tagged failure produced at resolver boundaries.
type ResolveError struct {
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *ResolveError) Error() string {
	if e.Kind == KindRateLimited {
		return fmt.Sprintf("upstream rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("upstream failure: %v", e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// RateLimited wraps err as an upstream rate-limit failure. Non-positive hints
// fall back to DefaultRetryAfter.
func RateLimited(err error, retryAfter time.Duration) error {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &ResolveError{Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

// Transient wraps err as a retryable upstream failure.
func Transient(err error) error {
	return &ResolveError{Kind: KindTransient, Err: err}
}

// AsRateLimited reports whether err carries an upstream rate limit and returns its hint.
func AsRateLimited(err error) (time.Duration, bool) {
	var rerr *ResolveError
	if errors.As(err, &rerr) && rerr.Kind == KindRateLimited {
		return rerr.RetryAfter, true
	}
	return 0, false
}
