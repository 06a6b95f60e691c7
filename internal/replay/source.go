package replay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"accelgpx/internal/session"
	"accelgpx/internal/track"
)

var openLog = Open

// Config selects a recorded log and how to pace it.
type Config struct {
	Path  string
	Speed float64
	Loop  bool
}

func (c Config) load() ([]Event, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("replay: path is required")
	}
	if c.Speed <= 0 {
		return nil, fmt.Errorf("replay: speed must be > 0")
	}
	evs, err := openLog(c.Path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("replay: open %s: %w", c.Path, session.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("replay: %w", err)
	}
	return evs, nil
}

// LocationSource plays the fixes of a log as a session.LocationSource. The
// log is reread on every Subscribe, so each session starts from the top.
type LocationSource struct {
	cfg     Config
	sleeper Sleeper
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ session.LocationSource = (*LocationSource)(nil)

func NewLocationSource(cfg Config) *LocationSource {
	return &LocationSource{cfg: cfg, now: time.Now}
}

func (s *LocationSource) Subscribe(ctx context.Context, deliver func(track.LocationFix)) error {
	if s == nil {
		return fmt.Errorf("replay: service is nil")
	}
	if deliver == nil {
		return fmt.Errorf("replay: deliver is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("replay: already subscribed")
	}
	evs, err := s.cfg.load()
	if err != nil {
		return err
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("replay location started path=%s speed=%v loop=%t", s.cfg.Path, s.cfg.Speed, s.cfg.Loop)
		err := Play(childCtx, evs, s.cfg.Speed, s.cfg.Loop, s.sleeper, func(ev Event) error {
			if ev.Kind != KindFix {
				return nil
			}
			fix := ev.Fix
			// Recorded fix times would place a replayed session in the past.
			fix.Time = s.now().UTC()
			deliver(fix)
			return nil
		})
		if err != nil && childCtx.Err() == nil {
			log.Printf("replay location stopped: %v", err)
		}
	}()
	return nil
}

func (s *LocationSource) Unsubscribe() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// MotionSource plays the acceleration samples of a log.
type MotionSource struct {
	cfg     Config
	sleeper Sleeper
	now     func() time.Time
}

func NewMotionSource(cfg Config) *MotionSource {
	return &MotionSource{cfg: cfg, now: time.Now}
}

// Run delivers samples until the log ends (or forever when looping) or ctx
// is done.
func (m *MotionSource) Run(ctx context.Context, deliver func(track.AccelerationSample)) error {
	if m == nil {
		return fmt.Errorf("replay: service is nil")
	}
	if deliver == nil {
		return fmt.Errorf("replay: deliver is nil")
	}
	evs, err := m.cfg.load()
	if err != nil {
		return err
	}
	log.Printf("replay motion started path=%s speed=%v loop=%t", m.cfg.Path, m.cfg.Speed, m.cfg.Loop)
	err = Play(ctx, evs, m.cfg.Speed, m.cfg.Loop, m.sleeper, func(ev Event) error {
		if ev.Kind != KindAccel {
			return nil
		}
		s := ev.Accel
		s.At = m.now().UTC()
		deliver(s)
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
