package connector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"trunk-connector/internal/media"
	"trunk-connector/internal/store"
	"trunk-connector/internal/telephony"
	"trunk-connector/pkg/utils"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retries of a single external or store call.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = time.Second
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = 5 * p.InitialInterval
	}
	return p
}

type retrier struct {
	policy RetryPolicy
	log    *slog.Logger
}

// do runs fn until it succeeds, fails permanently, exhausts MaxAttempts, or ctx ends.
// The last error from fn is returned; on ctx end the context error is returned.
func (r retrier) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1)), ctx)
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		retriesTotal.WithLabelValues(op).Inc()
		r.log.Warn("retrying", "op", op, "attempt", attempt, "wait", wait, "err", err)
	})
}

// isTransient reports whether err may clear on retry.
// Never retried: missing numbers, 4xx-class API errors, constraint violations, bad input, ctx end.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, telephony.ErrPhoneNumberNotFound) {
		return false
	}
	var carrierErr *telephony.APIError
	if errors.As(err, &carrierErr) {
		return carrierErr.Transient()
	}
	var mediaErr *media.APIError
	if errors.As(err, &mediaErr) {
		return mediaErr.Transient()
	}
	if errors.Is(err, store.ErrInvalidArgument) || errors.Is(err, store.ErrNotFound) {
		return false
	}
	if utils.IsConstraintViolation(err) {
		return false
	}
	return true
}
