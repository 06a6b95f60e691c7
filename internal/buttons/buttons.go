// Package buttons maps momentary push buttons on GPIO lines to session
// actions. Lines are inputs with pull-up; a press is a falling edge.
package buttons

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

type Action int

const (
	ActionStart Action = iota + 1
	ActionStop
	ActionExport
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionExport:
		return "export"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Config holds BCM pin numbers; 0 leaves that button unassigned.
type Config struct {
	StartPin  int
	StopPin   int
	ExportPin int
	Debounce  time.Duration
}

// Watcher owns the requested lines until Close.
type Watcher struct {
	mu     sync.Mutex
	lines  []io.Closer
	closed bool
}

// Open requests every configured line and calls handle for each press.
// handle runs on the GPIO event goroutine and must not block for long.
func Open(cfg Config, handle func(Action)) (*Watcher, error) {
	if handle == nil {
		return nil, errors.New("buttons: handler is nil")
	}
	pins := map[Action]int{
		ActionStart:  cfg.StartPin,
		ActionStop:   cfg.StopPin,
		ActionExport: cfg.ExportPin,
	}
	w := &Watcher{}
	for _, a := range []Action{ActionStart, ActionStop, ActionExport} {
		pin := pins[a]
		if pin <= 0 {
			continue
		}
		d := newDebouncer(a, cfg.Debounce, handle)
		line, err := openInputFn(pin, cfg.Debounce, d.press)
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("buttons: %s pin %d: %w", a, pin, err)
		}
		w.lines = append(w.lines, line)
		log.Printf("button enabled action=%s pin=%d debounce=%s", a, pin, cfg.Debounce)
	}
	if len(w.lines) == 0 {
		return nil, errors.New("buttons: no pins configured")
	}
	return w, nil
}

func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error
	for _, l := range w.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	w.lines = nil
	return errors.Join(errs...)
}

// debouncer drops presses closer than window to the previous accepted one.
// Kernels without hardware debounce support report every bounce.
type debouncer struct {
	action Action
	window time.Duration
	handle func(Action)

	mu   sync.Mutex
	last time.Duration
	seen bool
}

func newDebouncer(a Action, window time.Duration, handle func(Action)) *debouncer {
	return &debouncer{action: a, window: window, handle: handle}
}

// press takes the kernel event timestamp (monotonic since boot).
func (d *debouncer) press(ts time.Duration) {
	d.mu.Lock()
	if d.seen && ts-d.last < d.window {
		d.mu.Unlock()
		return
	}
	d.last = ts
	d.seen = true
	d.mu.Unlock()
	d.handle(d.action)
}
