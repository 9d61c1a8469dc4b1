// Package retry applies one exponential backoff policy to every external call:
// warehouse queries, node RPC and Redis lookups.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 10 * time.Second
)

// ErrExhausted wraps the last error of an operation that failed on every attempt.
var ErrExhausted = errors.New("retry attempts exhausted")

// Classifier reports whether an error is worth another attempt.
type Classifier func(err error) bool

// Policy configures retries. The zero value is usable and means the defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	// Classifier defaults to IsTransient.
	Classifier Classifier

	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(err error, next time.Duration)
}

// DefaultPolicy returns the policy used by every job unless configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
		MaxDelay:    DefaultMaxDelay,
	}
}

// WithNotify returns a copy of p that calls fn on every retry.
func (p Policy) WithNotify(fn func(err error, next time.Duration)) Policy {
	p.OnRetry = fn
	return p
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Classifier == nil {
		p.Classifier = IsTransient
	}
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// Do runs op until it succeeds, fails with a non-retryable error, the context
// ends, or the attempts run out. The last case returns an error matching
// ErrExhausted that still wraps the final cause.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p = p.withDefaults()

	var transient error
	err := backoff.RetryNotify(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !p.Classifier(err) {
			transient = nil
			return backoff.Permanent(err)
		}
		transient = err
		return err
	}, p.backOff(ctx), func(err error, next time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(err, next)
		}
	})

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case transient != nil:
		return fmt.Errorf("%w: %w", ErrExhausted, transient)
	default:
		return err
	}
}

// Value is Do for operations returning a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// transientMessages are substrings of node and warehouse errors that clear up
// on their own.
var transientMessages = []string{
	"rate limit",
	"429",
	"too many requests",
	"timeout",
	"timed out",
	"header not found",
	"connection reset",
	"connection refused",
	"broken pipe",
	"503",
	"502",
	"too_many_simultaneous_queries",
	"network_error",
}

// IsTransient is the default classifier. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
