// Package tracker is the application service: it owns the session
// controller, feeds it from the motion source, and turns buffered data into
// GPX files.
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"accelgpx/internal/correlate"
	"accelgpx/internal/gpx"
	"accelgpx/internal/session"
	"accelgpx/internal/track"
)

// MotionSource delivers acceleration samples until ctx is done. Its lifetime
// is independent of tracking: samples arriving while idle are dropped by the
// session.
type MotionSource interface {
	Run(ctx context.Context, deliver func(track.AccelerationSample)) error
}

// Recorder receives every sample and fix accepted into a session.
type Recorder interface {
	WriteAcceleration(now time.Time, s track.AccelerationSample) error
	WriteFix(now time.Time, fix track.LocationFix) error
}

type Config struct {
	Mode   correlate.Mode
	Export gpx.ExporterConfig

	// Recorder is optional.
	Recorder Recorder
}

// Summary describes one written export.
type Summary struct {
	SessionID     string    `json:"session_id,omitempty"`
	Path          string    `json:"path"`
	Points        int       `json:"points"`
	DroppedAccels int       `json:"dropped_accels"`
	DroppedFixes  int       `json:"dropped_fixes"`
	WrittenAt     time.Time `json:"written_at"`
}

// Status is a point-in-time view for logs and CLI output.
type Status struct {
	State      string    `json:"state"`
	SessionID  string    `json:"session_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	StoppedAt  time.Time `json:"stopped_at,omitzero"`
	Accels     int       `json:"accels"`
	Fixes      int       `json:"fixes"`
	Mode       string    `json:"mode"`
	ExportPath string    `json:"export_path"`
	LastExport *Summary  `json:"last_export,omitempty"`
}

type Service struct {
	ctrl     *session.Controller
	sess     *session.Session
	motion   MotionSource
	exporter *gpx.Exporter
	mode     correlate.Mode
	rec      Recorder

	// exportMu serializes exports; they share one target path.
	exportMu sync.Mutex

	mu   sync.Mutex
	last *Summary

	now func() time.Time
}

// New wires a service. loc and motion may be nil (no location fixes / no
// samples respectively).
func New(cfg Config, loc session.LocationSource, motion MotionSource) (*Service, error) {
	mode, err := correlate.ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	exp, err := gpx.NewExporter(cfg.Export)
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	sess := session.New()
	s := &Service{
		ctrl:     session.NewController(sess, loc),
		sess:     sess,
		motion:   motion,
		exporter: exp,
		mode:     mode,
		rec:      cfg.Recorder,
		now:      time.Now,
	}
	if s.rec != nil {
		s.ctrl.OnAcceptedFix(s.recordFix)
	}
	return s, nil
}

// Start begins a tracking session; ctx bounds the location subscription.
// session.ErrPermissionDenied is returned as-is (matchable with errors.Is).
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("tracker: service is nil")
	}
	return s.ctrl.Start(ctx)
}

// Stop ends the current session; buffered data stays exportable.
func (s *Service) Stop() error {
	if s == nil {
		return fmt.Errorf("tracker: service is nil")
	}
	return s.ctrl.Stop()
}

// RunMotion feeds the session from the motion source until ctx is done or
// the source ends.
func (s *Service) RunMotion(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("tracker: service is nil")
	}
	if s.motion == nil {
		return nil
	}
	return s.motion.Run(ctx, s.appendAcceleration)
}

func (s *Service) appendAcceleration(v track.AccelerationSample) {
	if v.At.IsZero() {
		v.At = s.now().UTC()
	}
	if !s.sess.AppendAcceleration(v) || s.rec == nil {
		return
	}
	if err := s.rec.WriteAcceleration(s.now(), v); err != nil {
		log.Printf("record acceleration failed: %v", err)
	}
}

// Export correlates the current buffers and writes the GPX file. It may run
// while tracking or after Stop; producers are never blocked on file I/O.
func (s *Service) Export(ctx context.Context) (Summary, error) {
	if s == nil {
		return Summary{}, fmt.Errorf("tracker: service is nil")
	}
	s.exportMu.Lock()
	defer s.exportMu.Unlock()

	info := s.ctrl.Info()
	accels, fixes := s.sess.Snapshot()
	res, err := correlate.Correlate(s.mode, accels, fixes)
	if err != nil {
		return Summary{}, fmt.Errorf("tracker: %w", err)
	}

	path, err := s.exporter.Export(ctx, res.Points)
	if err != nil {
		log.Printf("export failed session=%s: %v", info.ID, err)
		return Summary{}, err
	}
	sum := Summary{
		SessionID:     info.ID,
		Path:          path,
		Points:        len(res.Points),
		DroppedAccels: res.DroppedAccels,
		DroppedFixes:  res.DroppedFixes,
		WrittenAt:     s.now().UTC(),
	}
	log.Printf("export written session=%s path=%s points=%d dropped_accels=%d dropped_fixes=%d mode=%s",
		sum.SessionID, sum.Path, sum.Points, sum.DroppedAccels, sum.DroppedFixes, s.mode)

	s.mu.Lock()
	s.last = &sum
	s.mu.Unlock()
	return sum, nil
}

func (s *Service) Status() Status {
	if s == nil {
		return Status{}
	}
	info := s.ctrl.Info()
	st := Status{
		State:      info.State.String(),
		SessionID:  info.ID,
		StartedAt:  info.StartedAt,
		StoppedAt:  info.StoppedAt,
		Accels:     info.Accels,
		Fixes:      info.Fixes,
		Mode:       string(s.mode),
		ExportPath: s.exporter.Path(),
	}
	s.mu.Lock()
	if s.last != nil {
		cp := *s.last
		st.LastExport = &cp
	}
	s.mu.Unlock()
	return st
}

func (s *Service) recordFix(fix track.LocationFix) {
	if err := s.rec.WriteFix(s.now(), fix); err != nil {
		log.Printf("record fix failed: %v", err)
	}
}
