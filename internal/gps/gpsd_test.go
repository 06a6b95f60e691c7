package gps

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"accelgpx/internal/track"
)

func TestGPSDState_TPVEmitsFix(t *testing.T) {
	var st gpsdState
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	line := `{"class":"TPV","mode":3,"time":"2024-02-03T04:05:06.789Z","lat":45.5,"lon":-122.25,"alt":12.5,"altMSL":10.25}`
	fix, ok, err := st.applyLine(now, line)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ok {
		t.Fatalf("expected fix")
	}
	if fix.LatDeg != 45.5 || fix.LonDeg != -122.25 {
		t.Fatalf("lat/lon=%v/%v", fix.LatDeg, fix.LonDeg)
	}
	if fix.ElevationM != 10.25 {
		t.Fatalf("expected altMSL to win, got %v", fix.ElevationM)
	}
	want := time.Date(2024, 2, 3, 4, 5, 6, 789_000_000, time.UTC)
	if !fix.Time.Equal(want) {
		t.Fatalf("time=%v want %v", fix.Time, want)
	}
}

func TestGPSDState_NoFixModesIgnored(t *testing.T) {
	var st gpsdState
	now := time.Now().UTC()
	if _, ok, _ := st.applyLine(now, `{"class":"TPV","mode":1,"lat":1,"lon":2}`); ok {
		t.Fatalf("mode 1 must not emit")
	}
	if _, ok, _ := st.applyLine(now, `{"class":"TPV","mode":2,"lat":1}`); ok {
		t.Fatalf("missing lon must not emit")
	}
	// Mode persists across reports that omit it.
	fix, ok, _ := st.applyLine(now, `{"class":"TPV","mode":2}`)
	if ok {
		t.Fatalf("no position must not emit: %+v", fix)
	}
	fix, ok, _ = st.applyLine(now, `{"class":"TPV","lat":1,"lon":2,"alt":7}`)
	if !ok {
		t.Fatalf("expected fix with remembered mode")
	}
	if fix.ElevationM != 7 || !fix.Time.Equal(now) {
		t.Fatalf("fix=%+v", fix)
	}
}

func TestGPSDState_OtherClassesAndErrors(t *testing.T) {
	var st gpsdState
	now := time.Now().UTC()
	if _, ok, err := st.applyLine(now, `{"class":"SKY","hdop":0.9}`); ok || err != nil {
		t.Fatalf("SKY: ok=%v err=%v", ok, err)
	}
	if _, _, err := st.applyLine(now, `not json`); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestService_GPSDSubscribeDeliversFixes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	watched := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		watched <- strings.TrimSpace(line)
		_, _ = conn.Write([]byte(`{"class":"VERSION","release":"3.25"}` + "\n" +
			`{"class":"TPV","mode":3,"time":"2024-02-03T04:05:06Z","lat":1.5,"lon":2.5,"altMSL":3}` + "\n"))
		// Hold the connection open until the client closes it.
		_, _ = conn.Read(make([]byte, 1))
	}()

	s := New(Config{Source: "gpsd", GPSDAddr: ln.Addr().String()})
	fixes := make(chan track.LocationFix, 4)
	if err := s.Subscribe(context.Background(), func(f track.LocationFix) { fixes <- f }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := s.Subscribe(context.Background(), func(track.LocationFix) {}); err == nil {
		t.Fatalf("expected second subscribe to fail")
	}

	select {
	case w := <-watched:
		if !strings.HasPrefix(w, "?WATCH=") {
			t.Fatalf("unexpected watch command %q", w)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for WATCH")
	}
	select {
	case f := <-fixes:
		if f.LatDeg != 1.5 || f.LonDeg != 2.5 || f.ElevationM != 3 {
			t.Fatalf("fix=%+v", f)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for fix")
	}

	if !s.Snapshot().Subscribed {
		t.Fatalf("expected subscribed")
	}
	if err := s.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if s.Snapshot().Subscribed {
		t.Fatalf("expected unsubscribed")
	}
}

func TestService_UnknownSource(t *testing.T) {
	s := New(Config{Source: "carrier-pigeon"})
	if err := s.Subscribe(context.Background(), func(track.LocationFix) {}); err == nil {
		t.Fatalf("expected error")
	}
	if err := s.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe while idle: %v", err)
	}
}
