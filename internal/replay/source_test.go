package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accelgpx/internal/session"
	"accelgpx/internal/track"
)

const sampleLog = `START
0,A,1,0,0
0,L,10.0,20.0,5
10,A,0,1,0
20,L,11.0,21.0
30,A,0,0,1
`

func writeLog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.log")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLocationSource_DeliversFixes(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	src := NewLocationSource(Config{Path: writeLog(t, sampleLog), Speed: 1})
	src.sleeper = &fakeSleeper{}
	src.now = func() time.Time { return now }

	var mu sync.Mutex
	var got []track.LocationFix
	require.NoError(t, src.Subscribe(context.Background(), func(f track.LocationFix) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f)
	}))
	require.Error(t, src.Subscribe(context.Background(), func(track.LocationFix) {}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, src.Unsubscribe())

	assert.Equal(t, []track.LocationFix{
		{LatDeg: 10, LonDeg: 20, ElevationM: 5, Time: now},
		{LatDeg: 11, LonDeg: 21, Time: now},
	}, got)

	// A fresh subscription replays from the top.
	got = nil
	require.NoError(t, src.Subscribe(context.Background(), func(f track.LocationFix) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f)
	}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, src.Unsubscribe())
}

func TestLocationSource_SubscribeErrors(t *testing.T) {
	missing := NewLocationSource(Config{Path: filepath.Join(t.TempDir(), "nope.log"), Speed: 1})
	err := missing.Subscribe(context.Background(), func(track.LocationFix) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, session.ErrPermissionDenied)

	require.Error(t, NewLocationSource(Config{Speed: 1}).Subscribe(context.Background(), func(track.LocationFix) {}))
	require.Error(t, NewLocationSource(Config{Path: "x", Speed: 0}).Subscribe(context.Background(), func(track.LocationFix) {}))
	require.NoError(t, missing.Unsubscribe())
}

func stubOpenLog(t *testing.T, errno syscall.Errno) {
	t.Helper()
	prev := openLog
	openLog = func(path string) ([]Event, error) {
		return nil, &os.PathError{Op: "open", Path: path, Err: errno}
	}
	t.Cleanup(func() { openLog = prev })
}

func TestLocationSource_UnreadableLogIsPermissionDenied(t *testing.T) {
	stubOpenLog(t, syscall.EACCES)

	ctrl := session.NewController(nil, NewLocationSource(Config{Path: "/var/log/ride.log", Speed: 1}))
	err := ctrl.Start(context.Background())
	require.ErrorIs(t, err, session.ErrPermissionDenied)
	assert.Equal(t, session.Idle, ctrl.State())
}

func TestMotionSource_UnreadableLogIsPermissionDenied(t *testing.T) {
	stubOpenLog(t, syscall.EPERM)

	err := NewMotionSource(Config{Path: "/var/log/ride.log", Speed: 1}).Run(context.Background(), func(track.AccelerationSample) {})
	require.ErrorIs(t, err, session.ErrPermissionDenied)
}

func TestMotionSource_RunDeliversSamples(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	src := NewMotionSource(Config{Path: writeLog(t, sampleLog), Speed: 4})
	fs := &fakeSleeper{}
	src.sleeper = fs
	src.now = func() time.Time { return now }

	var got []track.AccelerationSample
	require.NoError(t, src.Run(context.Background(), func(s track.AccelerationSample) { got = append(got, s) }))
	assert.Equal(t, []track.AccelerationSample{
		{X: 1, At: now},
		{Y: 1, At: now},
		{Z: 1, At: now},
	}, got)
	// Waits follow all events, scaled by speed.
	assert.Equal(t, []time.Duration{2, 2, 2}, fs.slept)
}

func TestMotionSource_CanceledIsClean(t *testing.T) {
	src := NewMotionSource(Config{Path: writeLog(t, sampleLog), Speed: 1, Loop: true})
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := src.Run(ctx, func(track.AccelerationSample) {
		n++
		if n == 7 {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	err = NewMotionSource(Config{Path: "/nonexistent/replay.log", Speed: 1}).Run(context.Background(), func(track.AccelerationSample) {})
	require.Error(t, err)
	assert.False(t, errors.Is(err, session.ErrPermissionDenied))
}
