package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAttempts  = 5
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 10 * time.Second
)

// backoff decides whether and how long to wait before another attempt.
// Delays double from base and never exceed max.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

func newBackoff(attempts int) backoff {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return backoff{attempts: attempts, base: defaultBaseDelay, max: defaultMaxDelay}
}

func (b backoff) maxAttempts() int {
	if b.attempts <= 0 {
		return 1
	}
	return b.attempts
}

// next reports the wait before attempt+1, or false when err is final.
func (b backoff) next(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= b.maxAttempts() || ctx.Err() != nil {
		return 0, false
	}
	hint, ok := retryable(err)
	if !ok {
		return 0, false
	}
	if hint > 0 {
		return b.clamp(hint), true
	}
	delay := b.base
	for i := 1; i < attempt && delay < b.max; i++ {
		delay *= 2
	}
	return b.clamp(delay), true
}

func (b backoff) clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if b.max > 0 && d > b.max {
		return b.max
	}
	return d
}

// retryable classifies err. 408, 429 and 5xx responses, empty completions
// and network timeouts are retried; the returned hint is the server's
// Retry-After when it sent one.
func retryable(err error) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	if errors.Is(err, ErrEmptyContent) {
		return 0, true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return statusErr.RetryAfter, true
		}
		return 0, false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
	}
	return 0, false
}
