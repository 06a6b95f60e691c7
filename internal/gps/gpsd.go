package gps

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"accelgpx/internal/track"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

// dialGPSD connects to gpsd over TCP.
func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch enables JSON streaming reports.
func gpsdWatch(conn net.Conn) error {
	// scaled=true yields SI units (meters) and degrees.
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"))
	return err
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdTPV struct {
	Class string `json:"class"`
	Mode  *int   `json:"mode"`
	Time  string `json:"time"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	Alt    *float64 `json:"alt"`
	AltMSL *float64 `json:"altMSL"`
}

// gpsdState turns TPV reports into fixes. Only 2D/3D fixes with both
// coordinates produce a LocationFix.
type gpsdState struct {
	mode int
}

func (s *gpsdState) applyLine(nowUTC time.Time, line string) (track.LocationFix, bool, error) {
	var base gpsdMsgBase
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return track.LocationFix{}, false, fmt.Errorf("gpsd json parse failed: %v", err)
	}

	switch strings.ToUpper(strings.TrimSpace(base.Class)) {
	case "TPV":
		var tpv gpsdTPV
		if err := json.Unmarshal([]byte(line), &tpv); err != nil {
			return track.LocationFix{}, false, fmt.Errorf("gpsd tpv parse failed: %v", err)
		}
		fix, ok := s.applyTPV(nowUTC, tpv)
		return fix, ok, nil
	default:
		// Ignore other gpsd messages (e.g. VERSION/DEVICES/WATCH/SKY).
		return track.LocationFix{}, false, nil
	}
}

func (s *gpsdState) applyTPV(nowUTC time.Time, tpv gpsdTPV) (track.LocationFix, bool) {
	if tpv.Mode != nil {
		s.mode = *tpv.Mode
	}
	if s.mode < 2 || tpv.Lat == nil || tpv.Lon == nil {
		return track.LocationFix{}, false
	}

	fix := track.LocationFix{LatDeg: *tpv.Lat, LonDeg: *tpv.Lon, Time: nowUTC}
	if strings.TrimSpace(tpv.Time) != "" {
		if t, err := time.Parse(time.RFC3339Nano, tpv.Time); err == nil {
			fix.Time = t.UTC()
		}
	}

	altM := tpv.AltMSL
	if altM == nil {
		altM = tpv.Alt
	}
	if altM != nil {
		fix.ElevationM = *altM
	}
	return fix, true
}
