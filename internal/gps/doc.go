// Package gps is the location collaborator: it reads a GNSS receiver and
// delivers one track.LocationFix per navigation epoch.
//
// Two ingestion paths are supported:
//   - NMEA 0183 straight from a USB serial receiver (RMC for position and
//     time, GGA for altitude)
//   - gpsd's JSON stream (TPV reports)
//
// A serial device the process may not open is reported as
// session.ErrPermissionDenied.
package gps
