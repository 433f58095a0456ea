// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig configures per-strategy retries against a flaky backend.
type RetryConfig struct {
	// MaxAttempts counts the first call. 1 disables retries.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// InitialDelay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`

	// MaxDelay caps the backoff.
	// Default: 2s
	MaxDelay time.Duration `yaml:"max_delay,omitempty"`

	// Multiplier grows the delay after each attempt.
	// Default: 2
	Multiplier float64 `yaml:"multiplier,omitempty"`

	// Jitter randomizes each delay by up to this fraction (0.0-1.0).
	// Default: 0.1
	Jitter float64 `yaml:"jitter,omitempty"`

	// RetryableErrors are lower-case substrings marking retryable failures.
	RetryableErrors []string `yaml:"retryable_errors,omitempty"`
}

var defaultRetryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"rate limit",
	"too many requests",
	"temporarily unavailable",
	"service unavailable",
	"unavailable",
	"429",
	"502",
	"503",
	"504",
}

func (c *RetryConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.Jitter <= 0 {
		c.Jitter = 0.1
	}
	if len(c.RetryableErrors) == 0 {
		c.RetryableErrors = defaultRetryablePatterns
	}
}

func (c *RetryConfig) Validate() error {
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("jitter must be between 0 and 1, got %f", c.Jitter)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay (%s) must not be less than initial_delay (%s)", c.MaxDelay, c.InitialDelay)
	}
	return nil
}

// Retryer retries operations with exponential backoff and jitter.
type Retryer struct {
	config RetryConfig
}

// NewRetryer creates a retryer; zero fields take defaults.
func NewRetryer(cfg RetryConfig) *Retryer {
	cfg.SetDefaults()
	return &Retryer{config: cfg}
}

// NoRetry returns a retryer that makes exactly one attempt.
func NoRetry() *Retryer {
	return NewRetryer(RetryConfig{MaxAttempts: 1})
}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// attempts are exhausted, or ctx is done.
func Do[T any](ctx context.Context, r *Retryer, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		r = NoRetry()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if !r.isRetryable(err) {
			return zero, err
		}

		if attempt >= r.config.MaxAttempts {
			if r.config.MaxAttempts > 1 {
				slog.Warn("Max retries exceeded", "operation", operation, "attempts", attempt, "error", err)
			}
			return zero, &RetryError{Operation: operation, Attempts: attempt, LastError: err}
		}

		delay := r.delay(attempt)
		slog.Debug("Retrying operation",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", r.config.MaxAttempts,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Retryer) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range r.config.RetryableErrors {
		if strings.Contains(msg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// delay returns the backoff before retry number attempt (1-based).
func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	jitter := d * r.config.Jitter * (2*rand.Float64() - 1)
	d += jitter
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// RetryError reports an operation that kept failing after every attempt.
type RetryError struct {
	Operation string
	Attempts  int
	LastError error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.LastError)
}

func (e *RetryError) Unwrap() error {
	return e.LastError
}
