package gpx

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeLayout renders <time> values: UTC with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatFloat renders v as the shortest decimal that parses back to the same
// float64, always with a fractional part ("10" becomes "10.0"). Non-finite
// values render as NaN, +Inf and -Inf.
func FormatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
