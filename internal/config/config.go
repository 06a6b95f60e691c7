package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"accelgpx/internal/correlate"
	"accelgpx/internal/gpx"
)

type Config struct {
	Session SessionConfig `yaml:"session"`
	GPS     GPSConfig     `yaml:"gps"`
	Motion  MotionConfig  `yaml:"motion"`
	Export  ExportConfig  `yaml:"export"`
	Buttons ButtonsConfig `yaml:"buttons"`
	Replay  ReplayConfig  `yaml:"replay"`
}

type SessionConfig struct {
	Autostart bool   `yaml:"autostart"`
	Label     string `yaml:"label"`
	LabelAttr string `yaml:"label_attr"`
}

type GPSConfig struct {
	Enable bool `yaml:"enable"`
	// Source is "nmea" (serial), "gpsd" or "replay".
	Source     string `yaml:"source"`
	Device     string `yaml:"device"`
	Baud       int    `yaml:"baud"`
	GPSDAddr   string `yaml:"gpsd_addr"`
	ReplayPath string `yaml:"replay_path"`
}

type MotionConfig struct {
	Enable bool `yaml:"enable"`
	// Source is "icm20948" or "replay".
	Source string `yaml:"source"`
	// I2CBus is nil when unset; 0 selects /dev/i2c-0.
	I2CBus     *int          `yaml:"i2c_bus"`
	Addr       uint16        `yaml:"addr"`
	Rate       time.Duration `yaml:"rate"`
	ReplayPath string        `yaml:"replay_path"`
}

type ExportConfig struct {
	Dir       string        `yaml:"dir"`
	FileName  string        `yaml:"file_name"`
	Timeout   time.Duration `yaml:"timeout"`
	Alignment string        `yaml:"alignment"`
}

type ButtonsConfig struct {
	Enable    bool          `yaml:"enable"`
	StartPin  int           `yaml:"start_pin"`
	StopPin   int           `yaml:"stop_pin"`
	ExportPin int           `yaml:"export_pin"`
	Debounce  time.Duration `yaml:"debounce"`
}

type ReplayConfig struct {
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

// Option adjusts a decoded config before defaults and validation run.
type Option func(*Config)

// WithExportDir overrides export.dir when dir is non-empty.
func WithExportDir(dir string) Option {
	return func(c *Config) {
		if strings.TrimSpace(dir) != "" {
			c.Export.Dir = dir
		}
	}
}

func Load(path string, opts ...Option) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b, opts...)
}

// Parse decodes YAML, rejecting unknown fields, then applies opts, defaults
// and validation.
func Parse(b []byte, opts ...Option) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		if te := (*yaml.TypeError)(nil); errors.As(err, &te) {
			msgs := stripLinePrefix(te.Errors)
			if allUnknownFields(msgs) {
				return Config{}, fmt.Errorf("config contains unknown fields: %s", strings.Join(msgs, "; "))
			}
			return Config{}, fmt.Errorf("config invalid: %s", strings.Join(msgs, "; "))
		}
		return Config{}, err
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills defaults in place and reports the first problem.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Session.LabelAttr == "" {
		cfg.Session.LabelAttr = gpx.DefaultLabelAttr
	}
	if cfg.Session.Label == "" {
		cfg.Session.Label = gpx.DefaultLabel
	}
	if err := gpx.ValidateLabelAttr(cfg.Session.LabelAttr); err != nil {
		return fmt.Errorf("session.label_attr: %v", err)
	}

	cfg.GPS.Source = strings.ToLower(strings.TrimSpace(cfg.GPS.Source))
	if cfg.GPS.Source == "" {
		cfg.GPS.Source = "nmea"
	}
	switch cfg.GPS.Source {
	case "nmea":
		if cfg.GPS.Baud == 0 {
			cfg.GPS.Baud = 9600
		}
	case "gpsd":
		if strings.TrimSpace(cfg.GPS.GPSDAddr) == "" {
			cfg.GPS.GPSDAddr = "127.0.0.1:2947"
		}
	case "replay":
		if cfg.GPS.Enable && strings.TrimSpace(cfg.GPS.ReplayPath) == "" {
			return fmt.Errorf("gps.replay_path is required when gps.source is 'replay'")
		}
	default:
		return fmt.Errorf("gps.source must be one of nmea, gpsd, replay")
	}

	cfg.Motion.Source = strings.ToLower(strings.TrimSpace(cfg.Motion.Source))
	if cfg.Motion.Source == "" {
		cfg.Motion.Source = "icm20948"
	}
	switch cfg.Motion.Source {
	case "icm20948":
		if cfg.Motion.Addr == 0 {
			cfg.Motion.Addr = 0x68
		}
		if cfg.Motion.Addr > 0x7F {
			return fmt.Errorf("motion.addr must be a 7-bit i2c address")
		}
	case "replay":
		if cfg.Motion.Enable && strings.TrimSpace(cfg.Motion.ReplayPath) == "" {
			return fmt.Errorf("motion.replay_path is required when motion.source is 'replay'")
		}
	default:
		return fmt.Errorf("motion.source must be one of icm20948, replay")
	}
	if cfg.Motion.I2CBus == nil {
		bus := 1
		cfg.Motion.I2CBus = &bus
	}
	if *cfg.Motion.I2CBus < 0 {
		return fmt.Errorf("motion.i2c_bus must be >= 0")
	}
	if cfg.Motion.Rate <= 0 {
		cfg.Motion.Rate = 50 * time.Millisecond
	}

	if strings.TrimSpace(cfg.Export.Dir) == "" {
		return fmt.Errorf("export.dir is required")
	}
	if cfg.Export.FileName == "" {
		cfg.Export.FileName = gpx.DefaultFileName
	}
	if strings.ContainsAny(cfg.Export.FileName, `/\`) {
		return fmt.Errorf("export.file_name must be a bare file name")
	}
	if cfg.Export.Timeout == 0 {
		cfg.Export.Timeout = 10 * time.Second
	}
	if cfg.Export.Timeout < 0 {
		return fmt.Errorf("export.timeout must be > 0")
	}
	mode, err := correlate.ParseMode(cfg.Export.Alignment)
	if err != nil {
		return fmt.Errorf("export.alignment must be one of positional, nearest")
	}
	cfg.Export.Alignment = string(mode)

	if cfg.Buttons.Enable {
		if cfg.Buttons.StartPin <= 0 && cfg.Buttons.StopPin <= 0 && cfg.Buttons.ExportPin <= 0 {
			return fmt.Errorf("buttons.enable requires at least one of start_pin, stop_pin, export_pin")
		}
	}
	if cfg.Buttons.Debounce <= 0 {
		cfg.Buttons.Debounce = 50 * time.Millisecond
	}

	if cfg.Replay.Speed == 0 {
		cfg.Replay.Speed = 1
	}
	if cfg.Replay.Speed < 0 {
		return fmt.Errorf("replay.speed must be > 0")
	}

	return nil
}

// yaml.v3 prefixes each type error with "line N: ".
func stripLinePrefix(errs []string) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if i := strings.Index(e, ": "); i >= 0 && strings.HasPrefix(e, "line ") {
			e = e[i+2:]
		}
		out = append(out, e)
	}
	return out
}

func allUnknownFields(msgs []string) bool {
	for _, m := range msgs {
		if !strings.Contains(m, " not found in type ") {
			return false
		}
	}
	return len(msgs) > 0
}
