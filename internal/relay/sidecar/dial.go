package sidecar

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig controls the backoff between dial attempts.
type RetryConfig struct {
	MaxRetries int           // extra attempts after the first (0 = dial once)
	BaseDelay  time.Duration // default 500ms
	MaxDelay   time.Duration // default 15s
}

// DialWithRetry dials until it succeeds, the retries run out or ctx ends.
// The sidecar usually starts next to the daemon and may not be listening yet.
func DialWithRetry(ctx context.Context, url, token string, cfg RetryConfig) (*Client, error) {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 15 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		c, err := Dial(ctx, url, token)
		if err == nil {
			return c, nil
		}
		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
		slog.Warn("relay sidecar dial failed, retrying", "url", url, "attempt", attempt+1, "delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// backoffWithJitter is min(base*2^attempt, max) plus or minus 25%.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}
	quarter := delay / 4
	if quarter > 0 {
		delay += time.Duration(rand.Int64N(int64(quarter*2))) - quarter
	}
	return delay
}
