// Package replay records and plays back the two sensor streams.
//
// Log format: line-oriented text.
//
//   - Blank lines and lines starting with '#' are ignored.
//   - "START" resets the origin (next record time is relative to 0 again).
//     "START,<unix_ns>" additionally pins the origin to a wall-clock instant.
//   - "<t_ns>,A,<x>,<y>,<z>" is an acceleration sample in m/s^2.
//   - "<t_ns>,L,<lat>,<lon>[,<ele>[,<fix_unix_ms>]]" is a location fix.
//
// t_ns is nanoseconds since the last START.
package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"accelgpx/internal/track"
)

type Kind byte

const (
	KindStart Kind = 'S'
	KindAccel Kind = 'A'
	KindFix   Kind = 'L'
)

// Event is one log line. Exactly one of Accel/Fix is meaningful, per Kind.
type Event struct {
	At   time.Duration
	Kind Kind
	// Origin is the wall-clock instant of the governing START, if recorded.
	Origin time.Time

	Accel track.AccelerationSample
	Fix   track.LocationFix
}

// Wall returns the absolute instant of the event, or the zero time when the
// log carries no wall-clock origin.
func (e Event) Wall() time.Time {
	if e.Origin.IsZero() {
		return time.Time{}
	}
	return e.Origin.Add(e.At)
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Event, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var origin time.Time
	evs := make([]Event, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" || strings.HasPrefix(line, "START,") {
			origin = time.Time{}
			if rest, ok := strings.CutPrefix(line, "START,"); ok {
				ns, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
				if err != nil {
					return nil, fmt.Errorf("replay line %d: invalid START origin %q: %w", lineNo, rest, err)
				}
				origin = time.Unix(0, ns).UTC()
			}
			evs = append(evs, Event{Kind: KindStart, Origin: origin})
			continue
		}

		ev, err := parseEvent(line)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", lineNo, err)
		}
		ev.Origin = origin
		evs = append(evs, ev)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return evs, nil
}

func parseEvent(line string) (Event, error) {
	f := strings.Split(line, ",")
	for i := range f {
		f[i] = strings.TrimSpace(f[i])
	}
	if len(f) < 2 {
		return Event{}, fmt.Errorf("invalid line (missing comma): %q", line)
	}
	tsNs, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("invalid timestamp %q: %w", f[0], err)
	}
	if tsNs < 0 {
		return Event{}, fmt.Errorf("invalid timestamp (negative): %d", tsNs)
	}
	at := time.Duration(tsNs)

	vals, err := parseFloats(f[2:])
	if err != nil {
		return Event{}, err
	}

	switch f[1] {
	case "A":
		if len(vals) != 3 {
			return Event{}, fmt.Errorf("acceleration needs x,y,z: %q", line)
		}
		return Event{At: at, Kind: KindAccel, Accel: track.AccelerationSample{X: vals[0], Y: vals[1], Z: vals[2]}}, nil
	case "L":
		if len(vals) < 2 || len(vals) > 4 {
			return Event{}, fmt.Errorf("fix needs lat,lon[,ele[,fix_unix_ms]]: %q", line)
		}
		fix := track.LocationFix{LatDeg: vals[0], LonDeg: vals[1]}
		if len(vals) >= 3 {
			fix.ElevationM = vals[2]
		}
		if len(vals) == 4 {
			ms, err := strconv.ParseInt(f[5], 10, 64)
			if err != nil {
				return Event{}, fmt.Errorf("invalid fix time %q: %w", f[5], err)
			}
			fix.Time = time.UnixMilli(ms).UTC()
		}
		return Event{At: at, Kind: KindFix, Fix: fix}, nil
	default:
		return Event{}, fmt.Errorf("unknown record kind %q", f[1])
	}
}

func parseFloats(ss []string) ([]float64, error) {
	out := make([]float64, len(ss))
	for i, s := range ss {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

// Open reads and parses a log file.
func Open(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

// Split separates a log into timestamped samples and fixes. Events without a
// recorded wall-clock instant are placed relative to base.
func Split(events []Event, base time.Time) ([]track.AccelerationSample, []track.LocationFix) {
	var accels []track.AccelerationSample
	var fixes []track.LocationFix
	for _, ev := range events {
		at := ev.Wall()
		if at.IsZero() {
			at = base.Add(ev.At)
		}
		switch ev.Kind {
		case KindAccel:
			s := ev.Accel
			s.At = at
			accels = append(accels, s)
		case KindFix:
			fix := ev.Fix
			if fix.Time.IsZero() {
				fix.Time = at
			}
			fixes = append(fixes, fix)
		}
	}
	return accels, fixes
}

// Writer records both streams. It is safe for concurrent use by the two
// producers.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := fmt.Fprintf(bw, "START,%d\n", start.UnixNano()); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: start}, nil
}

func (ww *Writer) WriteAcceleration(now time.Time, s track.AccelerationSample) error {
	return ww.writeLine(now, "A,%s,%s,%s", fmtFloat(s.X), fmtFloat(s.Y), fmtFloat(s.Z))
}

func (ww *Writer) WriteFix(now time.Time, fix track.LocationFix) error {
	if fix.Time.IsZero() {
		return ww.writeLine(now, "L,%s,%s,%s", fmtFloat(fix.LatDeg), fmtFloat(fix.LonDeg), fmtFloat(fix.ElevationM))
	}
	return ww.writeLine(now, "L,%s,%s,%s,%d", fmtFloat(fix.LatDeg), fmtFloat(fix.LonDeg), fmtFloat(fix.ElevationM), fix.Time.UnixMilli())
}

func (ww *Writer) writeLine(now time.Time, format string, args ...any) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	// Use monotonic component of time when available.
	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	if _, err := fmt.Fprintf(ww.w, "%d,", d.Nanoseconds()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(ww.w, format+"\n", args...); err != nil {
		return err
	}
	return nil
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
