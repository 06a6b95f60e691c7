// Package motion is the accelerometer collaborator. A Poller samples a
// Reader at a fixed interval and hands each AccelerationSample to a callback.
package motion

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"accelgpx/internal/i2c"
	"accelgpx/internal/track"
)

const DefaultRate = 50 * time.Millisecond

// Reader produces one acceleration sample per call.
type Reader interface {
	ReadAcceleration() (track.AccelerationSample, error)
}

type Config struct {
	I2CBus int
	Addr   uint16
	Rate   time.Duration
}

// Snapshot is the poller's health, for status output.
type Snapshot struct {
	Running   bool   `json:"running"`
	Samples   uint64 `json:"samples"`
	Errors    uint64 `json:"errors"`
	LastError string `json:"last_error,omitempty"`
}

type Poller struct {
	r      Reader
	rate   time.Duration
	closer io.Closer

	running atomic.Bool
	samples atomic.Uint64
	errs    atomic.Uint64
	lastErr atomic.Value // string
}

// Open opens the I2C bus and probes the ICM-20948 at cfg.Addr.
func Open(cfg Config) (*Poller, error) {
	if cfg.Addr == 0 {
		cfg.Addr = DefaultAddr
	}
	bus, err := i2c.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("motion: %w", err)
	}
	dev, err := NewICM20948(bus.Dev(cfg.Addr), cfg.Rate)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("motion: %w", err)
	}
	log.Printf("motion enabled sensor=icm20948 bus=%s addr=0x%02X rate=%s", bus.Path(), cfg.Addr, cfg.Rate)
	p := NewPoller(dev, cfg.Rate)
	p.closer = bus
	return p, nil
}

// NewPoller samples r every rate (DefaultRate when <= 0).
func NewPoller(r Reader, rate time.Duration) *Poller {
	if rate <= 0 {
		rate = DefaultRate
	}
	return &Poller{r: r, rate: rate}
}

// Run delivers samples until ctx is done. Read failures are counted and
// logged once per streak; polling continues.
func (p *Poller) Run(ctx context.Context, deliver func(track.AccelerationSample)) error {
	if p == nil || p.r == nil {
		return fmt.Errorf("motion: poller is nil")
	}
	if deliver == nil {
		return fmt.Errorf("motion: deliver is nil")
	}
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("motion: already running")
	}
	defer p.running.Store(false)

	t := time.NewTicker(p.rate)
	defer t.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}

		s, err := p.r.ReadAcceleration()
		if err != nil {
			p.errs.Add(1)
			p.lastErr.Store(err.Error())
			if !failing {
				log.Printf("motion read failed: %v", err)
				failing = true
			}
			continue
		}
		if failing {
			log.Printf("motion read recovered")
			failing = false
		}
		p.samples.Add(1)
		deliver(s)
	}
}

func (p *Poller) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	out := Snapshot{
		Running: p.running.Load(),
		Samples: p.samples.Load(),
		Errors:  p.errs.Load(),
	}
	if v, ok := p.lastErr.Load().(string); ok {
		out.LastError = v
	}
	return out
}

// Close releases the underlying bus, if any.
func (p *Poller) Close() error {
	if p == nil || p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
