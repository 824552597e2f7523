package core

import (
	"context"
	"math/rand/v2"
	"time"

	retry "github.com/avast/retry-go"
)

var (
	rtyAttNum = uint(5)
	rtyAtt    = retry.Attempts(rtyAttNum)
	rtyDel    = retry.Delay(time.Millisecond * 400)
	rtyErr    = retry.LastErrorOnly(true)
)

// RetryPolicy decides when a failed submission is attempted again.
type RetryPolicy interface {
	// NextDelay returns the delay before the given attempt, counted from 1,
	// or giveUp when no more attempts should be made.
	NextDelay(attempt uint) (delay time.Duration, giveUp bool)
}

// ExponentialBackoff doubles the delay on each attempt up to Max.
// With Jitter, the delay is drawn uniformly from [0, delay] (full jitter).
type ExponentialBackoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts uint // zero means unlimited
	Jitter      bool
}

var _ RetryPolicy = (*ExponentialBackoff)(nil)

// DefaultRetryPolicy is used for submissions when none is configured
func DefaultRetryPolicy() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:        time.Second,
		Max:         time.Minute,
		MaxAttempts: 8,
		Jitter:      true,
	}
}

// ReconnectBackoff is used by event monitors to resubscribe
func ReconnectBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   time.Second,
		Max:    30 * time.Second,
		Jitter: true,
	}
}

func (b *ExponentialBackoff) NextDelay(attempt uint) (time.Duration, bool) {
	if attempt == 0 {
		attempt = 1
	}
	if b.MaxAttempts > 0 && attempt > b.MaxAttempts {
		return 0, true
	}
	delay := b.Base
	for i := uint(1); i < attempt && delay < b.Max; i++ {
		delay *= 2
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	if b.Jitter && delay > 0 {
		delay = time.Duration(rand.Int64N(int64(delay) + 1))
	}
	return delay, false
}

// wait blocks for d or until ctx is done
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
