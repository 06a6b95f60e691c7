package session

import (
	"errors"
	"time"

	"accelgpx/internal/track"
)

// ErrPermissionDenied is returned by Controller.Start when the location source
// refuses the subscription for authorization reasons. Location sources wrap
// it so callers can match with errors.Is.
var ErrPermissionDenied = errors.New("location permission denied")

// Session owns the captured data of one start-to-next-start cycle.
//
// Producer callbacks hold a *Session and call AppendAcceleration/AppendFix;
// both are no-ops while the session is not tracking.
type Session struct {
	accels Buffer[track.AccelerationSample]
	fixes  Buffer[track.LocationFix]
}

// New returns an idle session with empty buffers.
func New() *Session {
	return &Session{}
}

// AppendAcceleration records a sample. Samples arriving while idle are
// dropped.
func (s *Session) AppendAcceleration(v track.AccelerationSample) bool {
	if s == nil {
		return false
	}
	if v.At.IsZero() {
		v.At = time.Now().UTC()
	}
	return s.accels.Append(v)
}

// AppendFix records a location fix. Fixes arriving while idle are dropped.
func (s *Session) AppendFix(v track.LocationFix) bool {
	_, ok := s.acceptFix(v)
	return ok
}

// acceptFix is AppendFix that also returns the fix as stored.
func (s *Session) acceptFix(v track.LocationFix) (track.LocationFix, bool) {
	if s == nil {
		return v, false
	}
	if v.Time.IsZero() {
		v.Time = time.Now().UTC()
	}
	return v, s.fixes.Append(v)
}

// Snapshot returns consistent copies of both streams.
func (s *Session) Snapshot() (accels []track.AccelerationSample, fixes []track.LocationFix) {
	if s == nil {
		return nil, nil
	}
	return s.accels.Snapshot(), s.fixes.Snapshot()
}

// Counts returns the current buffer lengths.
func (s *Session) Counts() (accels, fixes int) {
	if s == nil {
		return 0, 0
	}
	return s.accels.Len(), s.fixes.Len()
}

func (s *Session) begin() {
	s.accels.reset()
	s.fixes.reset()
}

func (s *Session) end() {
	s.accels.freeze()
	s.fixes.freeze()
}

// discard drops everything buffered without reopening.
func (s *Session) discard() {
	s.accels.Clear()
	s.fixes.Clear()
}
