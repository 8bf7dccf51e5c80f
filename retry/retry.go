// Package retry runs rate-provider calls with bounded exponential backoff. Only transient
// failures (network errors, 429 and 5xx responses) are retried; everything else fails fast
// so the caller can move on to the next provider tier.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (including initial attempt)
	InitialDelay time.Duration // Initial delay between retries
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
}

// ProviderConfig is sized to fit inside a provider's per-call timeout.
var ProviderConfig = Config{
	MaxAttempts:  2,
	InitialDelay: 150 * time.Millisecond,
	MaxDelay:     time.Second,
	Multiplier:   2.0,
}

// ErrInvalidConfig is returned when MaxAttempts is not positive.
var ErrInvalidConfig = errors.New("retry: MaxAttempts must be positive")

// IsRetryable determines if an error should trigger a retry.
type IsRetryable func(error) bool

// StatusError is a non-2xx HTTP response from an upstream.
type StatusError struct {
	Upstream   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d %s", e.Upstream, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsTransient reports whether err is worth another attempt: a network error, a timeout
// of the individual request, or an HTTP 429/5xx. Cancellation of the caller's context
// is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}

	var ne net.Error
	return errors.As(err, &ne)
}

// WithRetry calls fn until it succeeds, returns a non-retryable error, or the attempts
// are used up. The delay between attempts grows by Multiplier up to MaxDelay.
func WithRetry[T any](
	ctx context.Context,
	config Config,
	isRetryable IsRetryable,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	if config.MaxAttempts <= 0 {
		return zero, ErrInvalidConfig
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Transient retries fn with cfg, treating IsTransient errors as retryable.
func Transient[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	return WithRetry(ctx, cfg, IsTransient, fn)
}
