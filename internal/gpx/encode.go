// Package gpx renders correlated track points as a GPX 1.1 document with an
// acceleration extension per point, and writes it to disk atomically.
//
// Output is byte-for-byte reproducible: numbers go through FormatFloat and
// times through FormatTime, and the layout is fixed:
//
//	<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
//	<gpx version="1.1" samu="Corrida das notas">
//	  <trkpt lat="10.0" lon="20.0">
//	    <ele>0.0</ele>
//	    <time>2024-05-01T12:00:00.000Z</time>
//	    <extensions>
//	      <acceleration x="1.0" y="0.0" z="0.0"/>
//	    </extensions>
//	  </trkpt>
//	</gpx>
package gpx

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode"

	"accelgpx/internal/track"
)

const (
	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

	DefaultLabelAttr = "samu"
	DefaultLabel     = "Corrida das notas"
)

// Label is the free-text attribute carried on the root element.
type Label struct {
	Attr  string
	Value string
}

// ValidateLabelAttr reports whether name can be used as an XML attribute name
// on the root element.
func ValidateLabelAttr(name string) error {
	if name == "" {
		return fmt.Errorf("gpx: label attribute name is empty")
	}
	if name == "version" || strings.HasPrefix(strings.ToLower(name), "xml") {
		return fmt.Errorf("gpx: label attribute name %q is reserved", name)
	}
	for i, r := range name {
		ok := unicode.IsLetter(r) || r == '_' || (i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'))
		if !ok {
			return fmt.Errorf("gpx: label attribute name %q is not a valid XML name", name)
		}
	}
	return nil
}

// Encode writes the document for points to w.
func Encode(w io.Writer, label Label, points []track.TrackPoint) error {
	if label.Attr == "" {
		label = Label{Attr: DefaultLabelAttr, Value: DefaultLabel}
	}
	if err := ValidateLabelAttr(label.Attr); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	enc := encoder{w: bw}

	enc.raw(xmlHeader)
	enc.raw(`<gpx version="1.1" `)
	enc.raw(label.Attr)
	enc.raw(`="`)
	enc.escaped(label.Value)
	enc.raw("\">\n")

	for _, p := range points {
		enc.point(p)
	}
	enc.raw("</gpx>\n")

	if enc.err != nil {
		return enc.err
	}
	return bw.Flush()
}

// encoder keeps the first write error so the layout code stays linear.
type encoder struct {
	w   *bufio.Writer
	err error
}

func (e *encoder) raw(s string) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.WriteString(s)
}

func (e *encoder) escaped(s string) {
	if e.err != nil {
		return
	}
	e.err = xml.EscapeText(e.w, []byte(s))
}

func (e *encoder) point(p track.TrackPoint) {
	loc := p.Location
	acc := p.Acceleration

	e.raw(`  <trkpt lat="`)
	e.raw(FormatFloat(loc.LatDeg))
	e.raw(`" lon="`)
	e.raw(FormatFloat(loc.LonDeg))
	e.raw("\">\n")

	e.raw("    <ele>")
	e.raw(FormatFloat(loc.ElevationM))
	e.raw("</ele>\n")

	e.raw("    <time>")
	e.raw(FormatTime(loc.Time))
	e.raw("</time>\n")

	e.raw("    <extensions>\n")
	e.raw(`      <acceleration x="`)
	e.raw(FormatFloat(acc.X))
	e.raw(`" y="`)
	e.raw(FormatFloat(acc.Y))
	e.raw(`" z="`)
	e.raw(FormatFloat(acc.Z))
	e.raw("\"/>\n")
	e.raw("    </extensions>\n")

	e.raw("  </trkpt>\n")
}
