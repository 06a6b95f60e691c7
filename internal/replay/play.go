package replay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Play replays events with their relative timing.
//
// cb is invoked for every data event; START markers reset the origin.
// Waits are computed across all events, so a callback that ignores one kind
// still sees the other kind at its recorded pace.
//
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
func Play(ctx context.Context, events []Event, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(Event) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if !hasData(events) {
		return errors.New("no records")
	}

	for {
		var lastAt time.Duration
		var haveLast bool

		for _, ev := range events {
			if err := ctx.Err(); err != nil {
				return err
			}
			if ev.Kind == KindStart {
				lastAt = 0
				haveLast = false
				continue
			}

			if haveLast {
				wait := ev.At - lastAt
				if wait < 0 {
					wait = 0
				}
				wait = time.Duration(float64(wait) / speedMultiplier)
				if wait > 0 {
					if err := sleeper.Sleep(ctx, wait); err != nil {
						return err
					}
				}
			}

			if err := cb(ev); err != nil {
				return err
			}

			lastAt = ev.At
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}

func hasData(events []Event) bool {
	for _, ev := range events {
		if ev.Kind != KindStart {
			return true
		}
	}
	return false
}
