// Package timeauth implements clocksource.Authority over the network.
//
// Two sources are supported: an NTP server and an HTTP time API that returns
// JSON. Either one only has to produce a UTC calendar timestamp. Transport
// failures are retried a few times inside the caller's context; malformed
// responses are not.
package timeauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/tellSlater/greeksummerlight/internal/clocksource"
)

const (
	defaultAttempts   = 3
	defaultRetryDelay = 500 * time.Millisecond
	defaultMaxDelay   = 5 * time.Second
)

// errPermanent marks failures that retrying will not fix.
var errPermanent = errors.New("permanent")

type options struct {
	logger     *slog.Logger
	attempts   uint
	retryDelay time.Duration
}

// Option configures an authority.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAttempts sets how many times one fetch tries the network.
func WithAttempts(n uint) Option {
	return func(o *options) {
		if n > 0 {
			o.attempts = n
		}
	}
}

// WithRetryDelay sets the base backoff between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) { o.retryDelay = d }
}

func newOptions(opts []Option) options {
	o := options{
		logger:     slog.Default(),
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// do runs fn with jittered backoff while it fails with a transport error.
// The returned error always wraps clocksource.ErrTransport or ErrParse.
func (o options) do(ctx context.Context, what string, fn func() error) error {
	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = fn()
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.retryDelay),
		retry.MaxDelay(defaultMaxDelay),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Debug("retrying time fetch", "source", what, "attempt", n+1, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, clocksource.ErrTransport) && !errors.Is(err, errPermanent)
		}),
	)
	if err == nil {
		return nil
	}
	if lastErr == nil {
		return fmt.Errorf("%w: %s: %w", clocksource.ErrTransport, what, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(lastErr, ctxErr) {
		return fmt.Errorf("%w (%w)", lastErr, ctxErr)
	}
	return lastErr
}
