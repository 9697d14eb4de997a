package adguard

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"dnsmedic/internal/metrics"

	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds the exponential backoff applied to idempotent GETs.
// The zero value disables retries.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// backoff returns the wait before retry number attempt (1-based)
func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := base << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	// jitter to avoid synchronized retries
	return d + time.Duration(rand.Int64N(int64(d/2)+1))
}

func (c *Client) withRetry(ctx context.Context, op string, fn func() (*http.Response, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			wait := c.retry.backoff(attempt)
			logrus.WithFields(logrus.Fields{
				"operation": op,
				"attempt":   attempt + 1,
				"backoff":   wait.String(),
			}).Warn("Retrying AdGuard DNS API request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err := fn()
		if err != nil {
			if attempt < c.retry.MaxRetries && isRetryableError(ctx, err) {
				metrics.APIRetries.WithLabelValues(op, "transport").Inc()
				continue
			}
			return nil, err
		}

		if resp.StatusCode >= 500 && attempt < c.retry.MaxRetries {
			drainAndClose(resp)
			metrics.APIRetries.WithLabelValues(op, "server_error").Inc()
			continue
		}

		return resp, nil
	}
}

// isRetryableError accepts transport failures only. Token refresh and
// configuration errors, and the caller's own cancellation, are final.
func isRetryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || isRefreshError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
