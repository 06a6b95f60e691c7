package main

import (
	"io"

	"accelgpx/internal/config"
	"accelgpx/internal/correlate"
	"accelgpx/internal/gps"
	"accelgpx/internal/gpx"
	"accelgpx/internal/motion"
	"accelgpx/internal/replay"
	"accelgpx/internal/session"
	"accelgpx/internal/tracker"
)

func trackerConfig(cfg config.Config) tracker.Config {
	return tracker.Config{
		Mode: correlate.Mode(cfg.Export.Alignment),
		Export: gpx.ExporterConfig{
			Dir:      cfg.Export.Dir,
			FileName: cfg.Export.FileName,
			Label:    gpx.Label{Attr: cfg.Session.LabelAttr, Value: cfg.Session.Label},
			Timeout:  cfg.Export.Timeout,
		},
	}
}

func replayConfig(cfg config.Config, path string) replay.Config {
	return replay.Config{Path: path, Speed: cfg.Replay.Speed, Loop: cfg.Replay.Loop}
}

// newLocationSource returns nil when GPS is disabled.
func newLocationSource(cfg config.Config) session.LocationSource {
	if !cfg.GPS.Enable {
		return nil
	}
	if cfg.GPS.Source == "replay" {
		return replay.NewLocationSource(replayConfig(cfg, cfg.GPS.ReplayPath))
	}
	return gps.New(gps.Config{
		Source:   cfg.GPS.Source,
		GPSDAddr: cfg.GPS.GPSDAddr,
		Device:   cfg.GPS.Device,
		Baud:     cfg.GPS.Baud,
	})
}

// newMotionSource returns a nil source when motion is disabled. The closer,
// when non-nil, releases hardware.
func newMotionSource(cfg config.Config) (tracker.MotionSource, io.Closer, error) {
	if !cfg.Motion.Enable {
		return nil, nil, nil
	}
	if cfg.Motion.Source == "replay" {
		return replay.NewMotionSource(replayConfig(cfg, cfg.Motion.ReplayPath)), nil, nil
	}
	p, err := motion.Open(motion.Config{
		I2CBus: *cfg.Motion.I2CBus,
		Addr:   cfg.Motion.Addr,
		Rate:   cfg.Motion.Rate,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, p, nil
}
