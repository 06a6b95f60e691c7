// Package track holds the value types shared by the acquisition, correlation
// and export stages.
package track

import "time"

// AccelerationSample is one accelerometer reading. At is the arrival instant
// and is not part of the exported document.
type AccelerationSample struct {
	X, Y, Z float64
	At      time.Time
}

// LocationFix is one reported position. Elevation is 0 when the source does
// not report altitude.
type LocationFix struct {
	LatDeg     float64
	LonDeg     float64
	ElevationM float64
	Time       time.Time
}

// TrackPoint is a correlated (fix, sample) pair; it becomes one <trkpt>.
type TrackPoint struct {
	Location     LocationFix
	Acceleration AccelerationSample
}
