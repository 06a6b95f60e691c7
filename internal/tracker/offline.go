package tracker

import (
	"context"
	"fmt"

	"accelgpx/internal/track"
)

// ExportRecorded runs one complete session over already-captured streams and
// exports it, exactly as a live session would be.
func ExportRecorded(ctx context.Context, cfg Config, accels []track.AccelerationSample, fixes []track.LocationFix) (Summary, error) {
	cfg.Recorder = nil
	svc, err := New(cfg, &staticLocation{fixes: fixes}, nil)
	if err != nil {
		return Summary{}, err
	}
	if err := svc.Start(ctx); err != nil {
		return Summary{}, err
	}
	for _, a := range accels {
		svc.appendAcceleration(a)
	}
	if err := svc.Stop(); err != nil {
		return Summary{}, fmt.Errorf("tracker: %w", err)
	}
	return svc.Export(ctx)
}

// staticLocation delivers a fixed list of fixes synchronously on Subscribe.
type staticLocation struct {
	fixes []track.LocationFix
}

func (s *staticLocation) Subscribe(_ context.Context, deliver func(track.LocationFix)) error {
	for _, f := range s.fixes {
		deliver(f)
	}
	return nil
}

func (s *staticLocation) Unsubscribe() error { return nil }
