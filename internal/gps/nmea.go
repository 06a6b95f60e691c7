package gps

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"accelgpx/internal/track"
)

type nmeaSentence struct {
	Type string
	// Fields is the comma-split NMEA payload (excluding $ and checksum).
	Fields []string
}

func parseNMEASentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nmeaSentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return nmeaSentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return nmeaSentence{}, fmt.Errorf("nmea: short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return nmeaSentence{}, fmt.Errorf("nmea: bad checksum")
	}
	got := byte(0)
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return nmeaSentence{}, fmt.Errorf("nmea: checksum mismatch")
	}

	parts := strings.Split(payload, ",")
	if len(parts[0]) < 3 {
		return nmeaSentence{}, fmt.Errorf("nmea: short type")
	}
	// Accept GNxxx/GPxxx, etc; normalize to last 3 chars.
	t := parts[0]
	if len(t) > 3 {
		t = t[len(t)-3:]
	}
	return nmeaSentence{Type: strings.ToUpper(t), Fields: parts}, nil
}

// nmeaState folds RMC and GGA into fixes. RMC closes an epoch and yields a
// fix; GGA only refreshes the altitude carried by the next RMC.
type nmeaState struct {
	altM  float64
	altOK bool
}

func (s *nmeaState) apply(nowUTC time.Time, sent nmeaSentence) (track.LocationFix, bool) {
	switch sent.Type {
	case "RMC":
		return s.applyRMC(nowUTC, sent.Fields)
	case "GGA":
		s.applyGGA(sent.Fields)
	}
	return track.LocationFix{}, false
}

// RMC: Recommended Minimum Specific GNSS Data
// Fields (NMEA 0183 v2.3):
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg)
//	9: date (ddmmyy)
func (s *nmeaState) applyRMC(nowUTC time.Time, f []string) (track.LocationFix, bool) {
	if len(f) < 10 {
		return track.LocationFix{}, false
	}
	if strings.TrimSpace(f[2]) != "A" {
		return track.LocationFix{}, false
	}
	lat, latOK := parseNMEALatLon(f[3], f[4])
	lon, lonOK := parseNMEALatLon(f[5], f[6])
	if !latOK || !lonOK {
		return track.LocationFix{}, false
	}

	fix := track.LocationFix{LatDeg: lat, LonDeg: lon, Time: nowUTC}
	if at, ok := parseNMEATime(f[9], f[1]); ok {
		fix.Time = at
	}
	if s.altOK {
		fix.ElevationM = s.altM
	}
	return fix, true
}

// GGA: Global Positioning System Fix Data
// Fields:
//
//	0: talker+type
//	1: time
//	2-5: latitude, N/S, longitude, E/W
//	6: fix quality (0=invalid)
//	7: number of satellites
//	8: HDOP
//	9: altitude (meters)
//
// 10: units (M)
func (s *nmeaState) applyGGA(f []string) {
	if len(f) < 11 {
		return
	}
	q := strings.TrimSpace(f[6])
	if q == "" || q == "0" {
		s.altOK = false
		return
	}
	if altM, ok := parseFloat(f[9]); ok {
		s.altM = altM
		s.altOK = true
	}
}

// parseNMEATime combines RMC date (ddmmyy) and time (hhmmss[.sss]) into UTC.
func parseNMEATime(date, clock string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if len(date) != 6 || len(clock) < 6 {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(date[0:2])
	mon, err2 := strconv.Atoi(date[2:4])
	yy, err3 := strconv.Atoi(date[4:6])
	hh, err4 := strconv.Atoi(clock[0:2])
	mm, err5 := strconv.Atoi(clock[2:4])
	sec, err6 := strconv.ParseFloat(clock[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return time.Time{}, false
	}
	if mon < 1 || mon > 12 || day < 1 || day > 31 || hh > 23 || mm > 59 || sec < 0 || sec >= 61 {
		return time.Time{}, false
	}
	// Two-digit years: 80-99 -> 1980s/90s, otherwise 2000+.
	year := 2000 + yy
	if yy >= 80 {
		year = 1900 + yy
	}
	whole := int(sec)
	nanos := int((sec - float64(whole)) * 1e9)
	// Round to the millisecond; receivers report at most that precision.
	nanos = (nanos + 500_000) / 1_000_000 * 1_000_000
	return time.Date(year, time.Month(mon), day, hh, mm, whole, nanos, time.UTC), true
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseNMEALatLon parses NMEA lat/lon in ddmm.mmmm or dddmm.mmmm plus hemisphere.
func parseNMEALatLon(v string, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(strings.ToUpper(hemi))
	if v == "" || (hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W") {
		return 0, false
	}

	// The last two digits of the integer part are minutes.
	dot := strings.IndexByte(v, '.')
	intPart := v
	if dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, false
	}

	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil {
		return 0, false
	}

	dec := float64(deg) + (mins / 60.0)
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
