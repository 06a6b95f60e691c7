package replay

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (fs *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	fs.slept = append(fs.slept, d)
	return ctx.Err()
}

func TestPlay_RespectsTimingAndStart(t *testing.T) {
	fs := &fakeSleeper{}
	evs := []Event{
		{Kind: KindStart},
		{At: 0, Kind: KindAccel},
		{At: 100, Kind: KindFix},
		{Kind: KindStart},
		{At: 50, Kind: KindAccel},
		{At: 80, Kind: KindAccel},
	}

	var kinds []Kind
	err := Play(context.Background(), evs, 1.0, false, fs, func(ev Event) error {
		kinds = append(kinds, ev.Kind)
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !reflect.DeepEqual(kinds, []Kind{KindAccel, KindFix, KindAccel, KindAccel}) {
		t.Fatalf("kinds = %q", kinds)
	}
	// No wait across a START marker.
	if !reflect.DeepEqual(fs.slept, []time.Duration{100, 30}) {
		t.Fatalf("slept = %v, want [100ns 30ns]", fs.slept)
	}
}

func TestPlay_SpeedMultiplier(t *testing.T) {
	fs := &fakeSleeper{}
	evs := []Event{
		{At: 0, Kind: KindAccel},
		{At: 100, Kind: KindAccel},
	}
	if err := Play(context.Background(), evs, 2.0, false, fs, func(Event) error { return nil }); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{50}) {
		t.Fatalf("slept = %v, want [50ns]", fs.slept)
	}
}

func TestPlay_Errors(t *testing.T) {
	evs := []Event{{At: 0, Kind: KindAccel}}
	noop := func(Event) error { return nil }
	if err := Play(context.Background(), evs, 0, false, nil, noop); err == nil {
		t.Fatalf("expected speed error")
	}
	if err := Play(context.Background(), evs, 1, false, nil, nil); err == nil {
		t.Fatalf("expected nil callback error")
	}
	if err := Play(context.Background(), []Event{{Kind: KindStart}}, 1, false, nil, noop); err == nil {
		t.Fatalf("expected no records error")
	}

	boom := errors.New("boom")
	if err := Play(context.Background(), evs, 1, false, nil, func(Event) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
}

func TestPlay_LoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	evs := []Event{
		{At: 0, Kind: KindFix},
		{At: 10, Kind: KindFix},
	}
	n := 0
	err := Play(ctx, evs, 1, true, &fakeSleeper{}, func(Event) error {
		n++
		if n == 5 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if n != 5 {
		t.Fatalf("callbacks=%d want 5", n)
	}
}
