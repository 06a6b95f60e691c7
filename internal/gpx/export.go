package gpx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"accelgpx/internal/track"
)

const (
	DefaultFileName = "track.gpx"

	tempFilePattern = ".track-*.gpx.tmp"
	exportFileMode  = 0o644
	writeChunk      = 32 * 1024
)

// createTemp is swapped in tests to inject write failures.
var createTemp = os.CreateTemp

// ExportIOError reports a failed export. The target path is left untouched:
// either the previous file is still there or nothing is.
type ExportIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *ExportIOError) Error() string {
	return fmt.Sprintf("gpx export: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ExportIOError) Unwrap() error { return e.Err }

// ExporterConfig controls where and how documents are written.
type ExporterConfig struct {
	// Dir is the output directory. Required.
	Dir string
	// FileName defaults to track.gpx; repeated exports overwrite it.
	FileName string

	Label Label

	// Timeout bounds the write step. Zero means no timeout beyond ctx.
	Timeout time.Duration
}

// Exporter writes documents to a fixed path.
type Exporter struct {
	cfg  ExporterConfig
	path string
}

// NewExporter validates cfg and fills defaults.
func NewExporter(cfg ExporterConfig) (*Exporter, error) {
	cfg.Dir = strings.TrimSpace(cfg.Dir)
	if cfg.Dir == "" {
		return nil, fmt.Errorf("gpx: export dir is required")
	}
	cfg.FileName = strings.TrimSpace(cfg.FileName)
	if cfg.FileName == "" {
		cfg.FileName = DefaultFileName
	}
	if cfg.FileName != filepath.Base(cfg.FileName) || cfg.FileName == "." || cfg.FileName == ".." {
		return nil, fmt.Errorf("gpx: file name %q must not contain a path", cfg.FileName)
	}
	if cfg.Label.Attr == "" {
		cfg.Label = Label{Attr: DefaultLabelAttr, Value: DefaultLabel}
	}
	if err := ValidateLabelAttr(cfg.Label.Attr); err != nil {
		return nil, err
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("gpx: timeout must be >= 0")
	}
	return &Exporter{cfg: cfg, path: filepath.Join(cfg.Dir, cfg.FileName)}, nil
}

// Path is where Export writes.
func (e *Exporter) Path() string {
	if e == nil {
		return ""
	}
	return e.path
}

// Export renders points and moves the result into place. It returns the
// target path. Any failure is an *ExportIOError.
func (e *Exporter) Export(ctx context.Context, points []track.TrackPoint) (string, error) {
	if e == nil {
		return "", fmt.Errorf("gpx: exporter is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := Encode(&buf, e.cfg.Label, points); err != nil {
		return "", &ExportIOError{Op: "encode", Path: e.path, Err: err}
	}
	if err := e.writeAtomic(ctx, buf.Bytes()); err != nil {
		return "", err
	}
	return e.path, nil
}

func (e *Exporter) writeAtomic(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &ExportIOError{Op: "write", Path: e.path, Err: err}
	}

	tmp, err := createTemp(e.cfg.Dir, tempFilePattern)
	if err != nil {
		return &ExportIOError{Op: "create", Path: e.path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	for off := 0; off < len(data); off += writeChunk {
		if err := ctx.Err(); err != nil {
			_ = tmp.Close()
			return &ExportIOError{Op: "write", Path: e.path, Err: err}
		}
		end := off + writeChunk
		if end > len(data) {
			end = len(data)
		}
		if _, err := tmp.Write(data[off:end]); err != nil {
			_ = tmp.Close()
			return &ExportIOError{Op: "write", Path: e.path, Err: err}
		}
	}
	if err := tmp.Chmod(exportFileMode); err != nil {
		_ = tmp.Close()
		return &ExportIOError{Op: "chmod", Path: e.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &ExportIOError{Op: "sync", Path: e.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ExportIOError{Op: "close", Path: e.path, Err: err}
	}

	// Last chance to honour a deadline; after the rename the file is live.
	if err := ctx.Err(); err != nil {
		return &ExportIOError{Op: "write", Path: e.path, Err: err}
	}
	if err := os.Rename(tmpName, e.path); err != nil {
		return &ExportIOError{Op: "rename", Path: e.path, Err: err}
	}
	cleanup = false
	return nil
}
