package gpx

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"accelgpx/internal/track"
)

// Document is the parsed form of an exported file.
type Document struct {
	XMLName xml.Name   `xml:"gpx"`
	Version string     `xml:"version,attr"`
	Attrs   []xml.Attr `xml:",any,attr"`
	Points  []Point    `xml:"trkpt"`
}

// Point mirrors one <trkpt>.
type Point struct {
	Lat          float64      `xml:"lat,attr"`
	Lon          float64      `xml:"lon,attr"`
	Ele          float64      `xml:"ele"`
	Time         string       `xml:"time"`
	Acceleration Acceleration `xml:"extensions>acceleration"`
}

// Acceleration mirrors <extensions><acceleration x y z/>.
type Acceleration struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
	Z float64 `xml:"z,attr"`
}

// Decode parses a document written by Encode.
func Decode(r io.Reader) (Document, error) {
	var doc Document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("gpx: decode: %w", err)
	}
	if doc.Version != "1.1" {
		return Document{}, fmt.Errorf("gpx: unsupported version %q", doc.Version)
	}
	return doc, nil
}

// Label returns the first root attribute other than version.
func (d Document) Label() Label {
	for _, a := range d.Attrs {
		if a.Name.Space == "" && a.Name.Local != "version" {
			return Label{Attr: a.Name.Local, Value: a.Value}
		}
	}
	return Label{}
}

// TrackPoints converts the parsed points back to track points. Sample
// arrival instants are not part of the document and stay zero.
func (d Document) TrackPoints() ([]track.TrackPoint, error) {
	out := make([]track.TrackPoint, 0, len(d.Points))
	for i, p := range d.Points {
		var at time.Time
		if s := strings.TrimSpace(p.Time); s != "" {
			t, err := time.Parse(TimeLayout, s)
			if err != nil {
				return nil, fmt.Errorf("gpx: trkpt %d: time %q: %w", i, s, err)
			}
			at = t
		}
		out = append(out, track.TrackPoint{
			Location: track.LocationFix{
				LatDeg:     p.Lat,
				LonDeg:     p.Lon,
				ElevationM: p.Ele,
				Time:       at,
			},
			Acceleration: track.AccelerationSample{
				X: p.Acceleration.X,
				Y: p.Acceleration.Y,
				Z: p.Acceleration.Z,
			},
		})
	}
	return out, nil
}
