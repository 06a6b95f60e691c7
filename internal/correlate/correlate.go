// Package correlate pairs buffered accelerometer samples with location fixes.
//
// Positional pairing is the default: sample i goes with fix i and whatever is
// left over in the longer stream is discarded. Nearest pairing is an opt-in
// alternative that matches each fix with the sample closest to it in time.
package correlate

import (
	"fmt"
	"sort"
	"strings"

	"accelgpx/internal/track"
)

// Mode selects the pairing strategy.
type Mode string

const (
	Positional Mode = "positional"
	Nearest    Mode = "nearest"
)

// ParseMode accepts the names used in configuration. Empty means Positional.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Positional:
		return Positional, nil
	case Nearest:
		return Nearest, nil
	default:
		return "", fmt.Errorf("correlate: unknown mode %q", s)
	}
}

// Result is a correlated track plus what was left unpaired.
type Result struct {
	Points []track.TrackPoint

	// DroppedAccels and DroppedFixes count inputs that did not make it into
	// Points. They are not errors.
	DroppedAccels int
	DroppedFixes  int
}

// Correlate pairs the two snapshots using mode.
func Correlate(mode Mode, accels []track.AccelerationSample, fixes []track.LocationFix) (Result, error) {
	switch mode {
	case "", Positional:
		return PositionalZip(accels, fixes), nil
	case Nearest:
		return NearestInTime(accels, fixes), nil
	default:
		return Result{}, fmt.Errorf("correlate: unknown mode %q", mode)
	}
}

// PositionalZip emits min(len(accels), len(fixes)) points, pairing by index
// in arrival order.
func PositionalZip(accels []track.AccelerationSample, fixes []track.LocationFix) Result {
	n := len(accels)
	if len(fixes) < n {
		n = len(fixes)
	}
	out := Result{
		Points:        make([]track.TrackPoint, 0, n),
		DroppedAccels: len(accels) - n,
		DroppedFixes:  len(fixes) - n,
	}
	for i := 0; i < n; i++ {
		out.Points = append(out.Points, track.TrackPoint{Location: fixes[i], Acceleration: accels[i]})
	}
	return out
}

// NearestInTime emits one point per fix, carrying the sample whose arrival
// instant is closest to the fix time. Ties go to the earlier sample. A sample
// may be used by more than one fix. With no samples, no points are emitted.
//
// accels must be in arrival order, which Buffer guarantees.
func NearestInTime(accels []track.AccelerationSample, fixes []track.LocationFix) Result {
	if len(accels) == 0 || len(fixes) == 0 {
		return Result{Points: []track.TrackPoint{}, DroppedAccels: len(accels), DroppedFixes: len(fixes)}
	}

	used := make([]bool, len(accels))
	usedCount := 0
	out := Result{Points: make([]track.TrackPoint, 0, len(fixes))}
	for _, fix := range fixes {
		i := nearestIndex(accels, fix)
		if !used[i] {
			used[i] = true
			usedCount++
		}
		out.Points = append(out.Points, track.TrackPoint{Location: fix, Acceleration: accels[i]})
	}
	out.DroppedAccels = len(accels) - usedCount
	return out
}

func nearestIndex(accels []track.AccelerationSample, fix track.LocationFix) int {
	// First sample at or after the fix.
	j := sort.Search(len(accels), func(k int) bool { return !accels[k].At.Before(fix.Time) })
	switch {
	case j == 0:
		return 0
	case j == len(accels):
		return len(accels) - 1
	}
	before := fix.Time.Sub(accels[j-1].At)
	after := accels[j].At.Sub(fix.Time)
	if after < before {
		return j
	}
	return j - 1
}
