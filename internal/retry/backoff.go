// Package retry wraps transient wiki API failures in an exponential
// backoff loop. Batch fan-outs inside a run degrade to empty results on
// failure; retry is reserved for the page fetch and the final edit,
// where giving up means the whole run is wasted.
package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config configures retry behavior with exponential backoff.
type Config struct {
	MaxRetries int           // maximum retry attempts after the first try
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // ceiling for the computed delay
	Multiplier float64       // exponential backoff multiplier
	Jitter     bool          // add random jitter to prevent thundering herd
}

// DefaultConfig returns a configuration with sensible defaults for
// wiki API calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Do executes op, retrying with exponential backoff while ctx is alive.
// Errors that don't look transient are returned immediately; otherwise
// the last error is returned when all attempts fail.
func Do(ctx context.Context, cfg Config, name string, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			if attempt > 0 {
				log.Info().Str("op", name).Int("attempt", attempt+1).Msg("operation succeeded after retry")
			}
			return nil
		}
		if !IsRetryable(lastErr) {
			log.Warn().Err(lastErr).Str("op", name).Msg("operation failed with permanent error")
			return lastErr
		}
		if attempt >= cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := calculateDelay(cfg, attempt)
		log.Warn().Err(lastErr).Str("op", name).
			Int("attempt", attempt+1).Dur("delay", delay).
			Msg("operation failed, backing off")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// calculateDelay computes the delay for the next retry attempt.
func calculateDelay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}
	return time.Duration(delay)
}

// IsRetryable reports whether an error looks like a transient network
// or server failure worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"429",
		"502",
		"503",
		"504",
		"no such host",
		"network unreachable",
		"broken pipe",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
