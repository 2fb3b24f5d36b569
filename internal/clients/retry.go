package clients

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
)

// RetryPolicy bounds retries of transient failures (network errors,
// HTTP 429 and 5xx). MaxRetries of zero disables retrying.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries three times starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// NoRetry performs each request exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// StatusError is a non-2xx response from a remote service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service returned status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// statusCode extracts the HTTP status from a StatusError in err's chain.
func statusCode(err error) int {
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// withRetry runs op under the policy. op returns errors unwrapped; the
// classification into retryable and permanent happens here.
func withRetry[T any](ctx context.Context, p RetryPolicy, logger *logging.Logger, name string, op func() (T, error)) (T, error) {
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		var se *StatusError
		if stderrors.As(err, &se) && !se.Transient() {
			return v, backoff.Permanent(err)
		}
		var perm *permanentError
		if stderrors.As(err, &perm) {
			return v, backoff.Permanent(perm.err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("Transient failure, retrying",
			"operation", name,
			"attempt", attempt,
			"backoff", wait.String(),
			"error", err)
	}

	return backoff.RetryNotifyWithData(wrapped, p.backOff(ctx), notify)
}

// permanentError marks failures such as malformed bodies that a retry
// cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}
