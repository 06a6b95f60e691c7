package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"accelgpx/internal/session"
	"accelgpx/internal/track"
)

// Config controls the GPS reader.
//
// The usual u-blox receivers appear as /dev/ttyACM* and talk NMEA at 9600
// baud. Device may be empty to auto-detect.
type Config struct {
	// Source selects "nmea" (direct serial) or "gpsd". Empty means "nmea".
	Source string

	// GPSDAddr is host:port for gpsd when Source=="gpsd".
	GPSDAddr string

	// Device is the serial device path for Source=="nmea".
	Device string
	Baud   int
}

// Snapshot is the reader's health, for status output.
type Snapshot struct {
	Subscribed bool   `json:"subscribed"`
	Source     string `json:"source"`
	Device     string `json:"device,omitempty"`
	Fixes      uint64 `json:"fixes"`
	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// Service implements session.LocationSource.
type Service struct {
	cfg Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	closer  io.Closer
	device  string
	lastErr string
	lastFix time.Time

	wg    sync.WaitGroup
	fixes atomic.Uint64
}

var _ session.LocationSource = (*Service)(nil)

var openSerialFn = openSerial

func New(cfg Config) *Service {
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	if cfg.Source == "" {
		cfg.Source = "nmea"
	}
	cfg.GPSDAddr = strings.TrimSpace(cfg.GPSDAddr)
	if cfg.GPSDAddr == "" {
		cfg.GPSDAddr = gpsdDefaultAddr
	}
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	return &Service{cfg: cfg}
}

// Subscribe starts delivering fixes until Unsubscribe or ctx ends.
func (s *Service) Subscribe(ctx context.Context, deliver func(track.LocationFix)) error {
	if s == nil {
		return fmt.Errorf("gps: service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("gps: ctx is nil")
	}
	if deliver == nil {
		return fmt.Errorf("gps: deliver is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("gps: already subscribed")
	}

	switch s.cfg.Source {
	case "nmea":
		return s.startNMEALocked(ctx, deliver)
	case "gpsd":
		return s.startGPSDLocked(ctx, deliver)
	default:
		return fmt.Errorf("gps: unknown source %q", s.cfg.Source)
	}
}

func (s *Service) startNMEALocked(ctx context.Context, deliver func(track.LocationFix)) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			s.lastErr = "gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found"
			return fmt.Errorf("gps: auto-detect failed")
		}
	}

	f, err := openSerialFn(device, s.cfg.Baud)
	if err != nil {
		s.lastErr = fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, s.cfg.Baud, err)
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("gps: open %s: %w", device, session.ErrPermissionDenied)
		}
		return fmt.Errorf("gps: open %s: %w", device, err)
	}
	s.closer = f
	s.device = device

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = f.Close() }()

		log.Printf("gps subscribed device=%s baud=%d", device, s.cfg.Baud)
		err := s.readNMEA(childCtx, f, deliver)
		if childCtx.Err() == nil {
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
		}
	}()
	return nil
}

// readNMEA consumes sentences until r ends or ctx is cancelled.
func (s *Service) readNMEA(ctx context.Context, r io.Reader, deliver func(track.LocationFix)) error {
	scanner := bufio.NewScanner(r)
	// NMEA sentences are typically < 82 chars, but allow some headroom.
	scanner.Buffer(make([]byte, 0, 256), 4096)

	var st nmeaState
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return io.EOF
		}

		line := strings.TrimSpace(scanner.Text())
		// Some receivers include non-NMEA chatter; filter quickly.
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sent, err := parseNMEASentence(line)
		if err != nil {
			// Keep the last error only; noise is common on serial lines.
			s.setError(err.Error())
			continue
		}
		if fix, ok := st.apply(time.Now().UTC(), sent); ok {
			s.publish(fix, deliver)
		}
	}
}

func (s *Service) startGPSDLocked(ctx context.Context, deliver func(track.LocationFix)) error {
	addr := s.cfg.GPSDAddr
	s.device = "gpsd"

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.Printf("gps subscribed source=gpsd addr=%s", addr)
		backoff := 250 * time.Millisecond
		maxBackoff := 10 * time.Second

		for childCtx.Err() == nil {
			conn, err := dialGPSD(childCtx, addr)
			if err != nil {
				s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", addr, err))
				select {
				case <-childCtx.Done():
					return
				case <-time.After(min(backoff, maxBackoff)):
				}
				if backoff < maxBackoff {
					backoff *= 2
				}
				continue
			}
			backoff = 250 * time.Millisecond

			s.mu.Lock()
			if childCtx.Err() != nil {
				s.mu.Unlock()
				_ = conn.Close()
				return
			}
			// Swap the closer so Unsubscribe can interrupt an active connection.
			s.closer = conn
			s.mu.Unlock()

			if err := gpsdWatch(conn); err != nil {
				s.setError(fmt.Sprintf("gpsd watch failed: %v", err))
			} else if err := s.readGPSD(childCtx, conn, deliver); err != nil && childCtx.Err() == nil {
				s.setError(fmt.Sprintf("gpsd read stopped: %v", err))
			}
			_ = conn.Close()
		}
	}()
	return nil
}

// readGPSD consumes gpsd JSON lines until r ends or ctx is cancelled.
func (s *Service) readGPSD(ctx context.Context, r io.Reader, deliver func(track.LocationFix)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)

	var st gpsdState
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fix, ok, err := st.applyLine(time.Now().UTC(), line)
		if err != nil {
			s.setError(err.Error())
			continue
		}
		if ok {
			s.publish(fix, deliver)
		}
	}
}

// Unsubscribe stops delivery and waits for the reader to exit.
func (s *Service) Unsubscribe() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	// Cancel under the lock so the gpsd loop cannot install a new closer after
	// we have taken the old one.
	if s.cancel != nil {
		s.cancel()
	}
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	var err error
	if closer != nil {
		err = closer.Close()
		if errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}
	s.wg.Wait()
	return err
}

// Snapshot reports reader health.
func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{
		Subscribed: s.cancel != nil,
		Source:     s.cfg.Source,
		Device:     s.device,
		Fixes:      s.fixes.Load(),
		LastError:  s.lastErr,
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (s *Service) publish(fix track.LocationFix, deliver func(track.LocationFix)) {
	s.mu.Lock()
	s.lastFix = fix.Time
	s.mu.Unlock()
	s.fixes.Add(1)
	deliver(fix)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
}

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
