package idle

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNeverSettled is returned by Wait when the attempt budget runs out.
var ErrNeverSettled = errors.New("merge service never seemed to settle down")

var errNotIdle = errors.New("not idle")

// Wait defaults: about 32s of sleeping across 15 attempts.
const (
	DefaultAttempts        = 15
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMultiplier      = 1.2
)

// WaitOptions tunes Wait. Zero values take the defaults.
type WaitOptions struct {
	// Dump logs not-idle reasons on the first attempt. The last attempt
	// always dumps.
	Dump            bool
	Attempts        int
	InitialInterval time.Duration
	Multiplier      float64
	// Timer replaces the real sleep; tests use it to observe intervals.
	Timer backoff.Timer
}

func (o WaitOptions) withDefaults() WaitOptions {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = DefaultInitialInterval
	}
	if o.Multiplier <= 0 {
		o.Multiplier = DefaultMultiplier
	}
	return o
}

// Wait calls Check until it reports idle, a check fails fatally, ctx is
// done, or the attempts are used up, sleeping with exponential backoff in
// between.
func (p *Poller) Wait(ctx context.Context, opts WaitOptions) error {
	opts = opts.withDefaults()

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     opts.InitialInterval,
		RandomizationFactor: 0,
		Multiplier:          opts.Multiplier,
		MaxInterval:         time.Hour,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(opts.Attempts-1)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		dump := (attempt == 1 && opts.Dump) || attempt == opts.Attempts
		idle, err := p.Check(ctx, dump)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !idle {
			return errNotIdle
		}
		return nil
	}
	notify := func(_ error, next time.Duration) {
		p.logger().Debug("waiting for merge service", "attempt", attempt, "sleep", next)
	}

	err := backoff.RetryNotifyWithTimer(op, policy, notify, opts.Timer)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errNotIdle):
		p.logger().Warn("Time out!")
		return ErrNeverSettled
	default:
		return err
	}
}
