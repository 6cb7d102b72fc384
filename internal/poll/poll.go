// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package poll provides a bounded check-then-backoff loop for conditions
// that have no completion signal, such as a file appearing on disk.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Until when the condition never held before
// the deadline.
var ErrTimeout = errors.New("poll: condition not met before timeout")

// Options controls Until. Interval starts at Initial and doubles after
// each unsuccessful check, never exceeding Max. Timeout bounds the whole
// loop; the condition is always checked once more at the deadline.
type Options struct {
	Initial time.Duration
	Max     time.Duration
	Timeout time.Duration
}

const (
	defaultInitial = 250 * time.Millisecond
	defaultMax     = 2 * time.Second
)

// Until calls check until it returns true, returns an error, the timeout
// elapses (ErrTimeout), or ctx is cancelled (ctx.Err()).
func Until(ctx context.Context, opts Options, check func() (bool, error)) error {
	interval := opts.Initial
	if interval <= 0 {
		interval = defaultInitial
	}
	maxInterval := opts.Max
	if maxInterval <= 0 {
		maxInterval = defaultMax
	}
	if interval > maxInterval {
		interval = maxInterval
	}

	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	for {
		ok, err := check()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		wait := interval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrTimeout
			}
			if wait > remaining {
				wait = remaining
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// Sleep waits for d or until ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
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
