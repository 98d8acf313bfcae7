// Package waiter waits for an external authority to confirm a published
// validation challenge.
package waiter

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/diversitus/infra/resource"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

// OutputFQDN is the output set on a resource once its challenge has been
// confirmed.
const OutputFQDN = "validation_fqdn"

// A RetryPolicy controls how often the validation status is polled and for
// how long.
type RetryPolicy struct {
	InitialInterval     time.Duration
	Multiplier          float64
	MaxInterval         time.Duration
	RandomizationFactor float64

	// MaxElapsedTime limits the total time spent polling. Zero means no limit.
	MaxElapsedTime time.Duration

	// MaxAttempts limits the number of polls. Zero means no limit.
	MaxAttempts uint64
}

// DefaultRetryPolicy is used when a Waiter has no policy set.
//
// Certificate authorities typically confirm a DNS challenge within a few
// minutes, but may take much longer when the zone was just delegated.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval:     5 * time.Second,
	Multiplier:          1.5,
	MaxInterval:         30 * time.Second,
	RandomizationFactor: 0.2,
	MaxElapsedTime:      45 * time.Minute,
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.Multiplier = p.Multiplier
	exp.MaxInterval = p.MaxInterval
	exp.RandomizationFactor = p.RandomizationFactor
	exp.MaxElapsedTime = p.MaxElapsedTime
	var b backoff.BackOff = exp
	if p.MaxAttempts > 0 {
		// The first poll is not a retry.
		b = backoff.WithMaxRetries(b, p.MaxAttempts-1)
	}
	return backoff.WithContext(b, ctx)
}

// PublishFunc publishes a challenge.
type PublishFunc func(ctx context.Context, ch resource.Challenge) error

// PollFunc reports the current status of a validation.
type PollFunc func(ctx context.Context) (resource.ValidationStatus, error)

// A Waiter publishes validation challenges and waits for them to be
// confirmed.
type Waiter struct {
	// Policy sets the poll schedule. If not set, DefaultRetryPolicy is used.
	Policy *RetryPolicy

	// Logger logs poll attempts. If not set, logs are discarded.
	Logger *zap.Logger
}

var errPending = errors.New("validation pending")

// Wait publishes the challenge and polls until the validation completes.
//
// The challenge is published exactly once. A failure to publish is returned
// as is, without polling. Errors returned from poll are logged and treated as
// if the validation was still pending.
//
// On success, a copy of res is returned with status Validated and the
// validation_fqdn output set. The following errors may be returned:
//
//   - *ValidationRejectedError if the authority rejected the challenge.
//   - *ValidationTimeoutError if the policy ran out of attempts or time.
//   - *resource.CancelledError if ctx was cancelled. The published challenge
//     is not retracted.
func (w *Waiter) Wait(ctx context.Context, res *resource.Resolved, ch resource.Challenge, publish PublishFunc, poll PollFunc) (*resource.Resolved, error) {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("name", res.Name), zap.String("fqdn", ch.ExpectedFQDN))

	policy := DefaultRetryPolicy
	if w.Policy != nil {
		policy = *w.Policy
	}

	if err := ctx.Err(); err != nil {
		return nil, &resource.CancelledError{Resource: res.Name, Err: err}
	}

	logger.Debug("Publish challenge", zap.String("record", ch.RecordName), zap.String("type", ch.RecordType))
	if err := publish(ctx, ch); err != nil {
		if ctx.Err() != nil {
			return nil, &resource.CancelledError{Resource: res.Name, Err: ctx.Err()}
		}
		return nil, errors.Wrap(err, "publish challenge")
	}

	start := time.Now()
	var attempts uint64
	var lastErr error

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		status, err := poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			lastErr = err
			logger.Info("Poll failed", zap.Uint64("attempt", attempts), zap.Error(err))
			return err
		}
		switch status {
		case resource.ValidationSuccess:
			return nil
		case resource.ValidationFailure:
			return backoff.Permanent(&ValidationRejectedError{Resource: res.Name, FQDN: ch.ExpectedFQDN})
		default:
			return errPending
		}
	}
	notify := func(err error, next time.Duration) {
		logger.Debug("Validation pending", zap.Uint64("attempt", attempts), zap.Duration("next", next))
	}

	err := backoff.RetryNotify(op, policy.backoff(ctx), notify)
	if ctx.Err() != nil {
		return nil, &resource.CancelledError{Resource: res.Name, Err: ctx.Err()}
	}
	if err != nil {
		if rerr, ok := err.(*ValidationRejectedError); ok {
			logger.Info("Validation rejected", zap.Uint64("attempts", attempts))
			return nil, rerr
		}
		logger.Info("Validation timed out", zap.Uint64("attempts", attempts))
		return nil, &ValidationTimeoutError{
			Resource: res.Name,
			Attempts: attempts,
			Elapsed:  time.Since(start),
			Err:      lastErr,
		}
	}

	logger.Info("Validated", zap.Uint64("attempts", attempts), zap.Duration("elapsed", time.Since(start)))

	out := res.Copy()
	out.Status = resource.StatusValidated
	if out.Outputs == nil {
		out.Outputs = make(resource.Attrs)
	}
	out.Outputs[OutputFQDN] = cty.StringVal(ch.ExpectedFQDN)
	return out, nil
}
