package channel

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/yoockh/interviewstream/internal/utils"
)

// ConnectionPolicy decides whether a failed open is retried with a fresh
// Channel. Channels never reopen themselves.
type ConnectionPolicy interface {
	// Schedule returns a new retry schedule for one connect sequence.
	Schedule() RetrySchedule
}

type RetrySchedule interface {
	// Next returns the delay before the next attempt, or false to give up.
	Next() (time.Duration, bool)
}

type scheduleFunc func() (time.Duration, bool)

func (f scheduleFunc) Next() (time.Duration, bool) { return f() }

// NoRetry is the default policy: the first failure is final.
type NoRetry struct{}

func (NoRetry) Schedule() RetrySchedule {
	return scheduleFunc(func() (time.Duration, bool) { return 0, false })
}

// FixedRetry retries up to Attempts times, Delay apart.
type FixedRetry struct {
	Attempts int
	Delay    time.Duration
}

func (p FixedRetry) Schedule() RetrySchedule {
	n := 0
	return scheduleFunc(func() (time.Duration, bool) {
		if n >= p.Attempts {
			return 0, false
		}
		n++
		return p.Delay, true
	})
}

// ExponentialRetry retries up to MaxRetries times with exponential backoff.
// Jitter is the randomization factor (0 disables it).
type ExponentialRetry struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (p ExponentialRetry) Schedule() RetrySchedule {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	if p.Multiplier > 1 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	b.Reset()

	n := 0
	return scheduleFunc(func() (time.Duration, bool) {
		if n >= p.MaxRetries {
			return 0, false
		}
		n++
		d := b.NextBackOff()
		if d == backoff.Stop {
			return 0, false
		}
		return d, true
	})
}

// PolicyByName maps a config value to a policy. Unknown names mean NoRetry.
func PolicyByName(name string, attempts int, delay time.Duration) ConnectionPolicy {
	switch name {
	case "fixed":
		return FixedRetry{Attempts: attempts, Delay: delay}
	case "backoff":
		return ExponentialRetry{MaxRetries: attempts, Initial: delay, Multiplier: 2, Jitter: 0.2}
	default:
		return NoRetry{}
	}
}

// OpenWithPolicy opens a channel built by newChannel, building a replacement
// for every retry the policy allows. It returns the last open error when the
// policy gives up.
func OpenWithPolicy(ctx context.Context, newChannel func() *Channel, sessionID string, policy ConnectionPolicy) (*Channel, error) {
	const op = "channel.OpenWithPolicy"

	if policy == nil {
		policy = NoRetry{}
	}
	sched := policy.Schedule()

	for {
		ch := newChannel()
		err := ch.Open(ctx, sessionID)
		if err == nil {
			return ch, nil
		}
		_ = ch.Close()

		if utils.IsCode(err, utils.CodeInvalidArgument) || errors.Is(err, ErrClosed) {
			return nil, err
		}
		delay, ok := sched.Next()
		if !ok {
			return nil, err
		}
		ch.log.WithError(err).WithField("retry_in_ms", delay.Milliseconds()).Info("retrying channel open")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, utils.E(utils.CodeTimeout, op, "gave up waiting to reconnect", ctx.Err())
		case <-t.C:
		}
	}
}
