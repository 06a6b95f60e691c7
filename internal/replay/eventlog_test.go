package replay

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"accelgpx/internal/track"
)

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

START
0, A, 1, 0, 0
10,L,10.0,20.0
25,L,11.5,21.25,300,1700000000123
START,1700000000000000000
5,A,0,-9.80665,0.5
`)

	evs, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	origin := time.Unix(1700000000, 0).UTC()
	want := []Event{
		{Kind: KindStart},
		{At: 0, Kind: KindAccel, Accel: track.AccelerationSample{X: 1}},
		{At: 10, Kind: KindFix, Fix: track.LocationFix{LatDeg: 10, LonDeg: 20}},
		{At: 25, Kind: KindFix, Fix: track.LocationFix{LatDeg: 11.5, LonDeg: 21.25, ElevationM: 300, Time: time.UnixMilli(1700000000123).UTC()}},
		{Kind: KindStart, Origin: origin},
		{At: 5, Kind: KindAccel, Origin: origin, Accel: track.AccelerationSample{Y: -9.80665, Z: 0.5}},
	}
	if diff := cmp.Diff(want, evs); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if got := evs[5].Wall(); !got.Equal(origin.Add(5)) {
		t.Fatalf("Wall()=%v", got)
	}
	if !evs[1].Wall().IsZero() {
		t.Fatalf("expected zero wall time without origin")
	}
}

func TestReaderReadAll_InvalidLines(t *testing.T) {
	cases := []string{
		"not-a-valid-line",
		"x,A,1,2,3",
		"-1,A,1,2,3",
		"0,A,1,2",
		"0,L,1",
		"0,L,1,2,3,4,5",
		"0,Q,1,2",
		"0,A,1,two,3",
		"START,soon",
	}
	for _, line := range cases {
		_, err := NewReader(strings.NewReader("START\n" + line + "\n")).ReadAll()
		if err == nil {
			t.Fatalf("%q: expected error", line)
		}
		if !strings.Contains(err.Error(), "line 2") {
			t.Fatalf("%q: error should name the line: %v", line, err)
		}
	}
}

func TestSplit_TimestampsRelativeToBaseOrOrigin(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	origin := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fixTime := time.Date(2025, 6, 1, 12, 0, 0, 500_000_000, time.UTC)
	evs := []Event{
		{Kind: KindStart},
		{At: time.Second, Kind: KindAccel, Accel: track.AccelerationSample{X: 1}},
		{At: 2 * time.Second, Kind: KindFix, Fix: track.LocationFix{LatDeg: 1, LonDeg: 2}},
		{Kind: KindStart, Origin: origin},
		{At: time.Second, Kind: KindAccel, Origin: origin, Accel: track.AccelerationSample{Y: 1}},
		{At: time.Second, Kind: KindFix, Origin: origin, Fix: track.LocationFix{LatDeg: 3, LonDeg: 4, Time: fixTime}},
	}

	accels, fixes := Split(evs, base)
	wantAccels := []track.AccelerationSample{
		{X: 1, At: base.Add(time.Second)},
		{Y: 1, At: origin.Add(time.Second)},
	}
	wantFixes := []track.LocationFix{
		{LatDeg: 1, LonDeg: 2, Time: base.Add(2 * time.Second)},
		{LatDeg: 3, LonDeg: 4, Time: fixTime},
	}
	if diff := cmp.Diff(wantAccels, accels); diff != "" {
		t.Fatalf("accels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantFixes, fixes); diff != "" {
		t.Fatalf("fixes mismatch (-want +got):\n%s", diff)
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log")

	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	start := w.start
	fixTime := time.UnixMilli(1700000000250).UTC()

	if err := w.WriteAcceleration(start.Add(20), track.AccelerationSample{X: 0.1, Y: -2, Z: 9.81}); err != nil {
		t.Fatalf("WriteAcceleration() error: %v", err)
	}
	if err := w.WriteFix(start.Add(30), track.LocationFix{LatDeg: -23.5, LonDeg: -46.625, ElevationM: 760, Time: fixTime}); err != nil {
		t.Fatalf("WriteFix() error: %v", err)
	}
	if err := w.WriteFix(start.Add(-5), track.LocationFix{LatDeg: 1, LonDeg: 2}); err != nil {
		t.Fatalf("WriteFix() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := w.WriteFix(start, track.LocationFix{}); err == nil {
		t.Fatalf("expected error after Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	wantLines := []string{
		"START," + strconv.FormatInt(start.UnixNano(), 10),
		"20,A,0.1,-2,9.81",
		"30,L,-23.5,-46.625,760,1700000000250",
		"0,L,1,2,0",
	}
	if diff := cmp.Diff(wantLines, lines); diff != "" {
		t.Fatalf("file mismatch (-want +got):\n%s", diff)
	}

	evs, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	accels, fixes := Split(evs, time.Time{})
	if len(accels) != 1 || len(fixes) != 2 {
		t.Fatalf("got %d accels, %d fixes", len(accels), len(fixes))
	}
	if !accels[0].At.Equal(time.Unix(0, start.UnixNano()+20)) {
		t.Fatalf("accel At=%v", accels[0].At)
	}
	if !fixes[0].Time.Equal(fixTime) {
		t.Fatalf("fix time=%v", fixes[0].Time)
	}
}
