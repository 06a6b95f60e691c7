package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"accelgpx/internal/track"
)

// State is the acquisition state of a Controller.
type State int

const (
	Idle State = iota
	Tracking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LocationSource delivers fixes between Subscribe and Unsubscribe.
//
// Subscribe must not block for the lifetime of the subscription; deliveries
// happen on the source's own goroutine. A refusal for authorization reasons
// must wrap ErrPermissionDenied.
type LocationSource interface {
	Subscribe(ctx context.Context, deliver func(track.LocationFix)) error
	Unsubscribe() error
}

// Info describes the current or most recent session.
type Info struct {
	State     State
	ID        string
	StartedAt time.Time
	StoppedAt time.Time
	Accels    int
	Fixes     int
}

// Controller gates acquisition for a single Session. Start and Stop are
// serialized; producers may append concurrently with either.
type Controller struct {
	mu sync.Mutex

	sess *Session
	loc  LocationSource

	state     State
	id        string
	startedAt time.Time
	stoppedAt time.Time

	onFix func(track.LocationFix)

	now func() time.Time
}

// NewController returns an idle controller owning sess. A nil sess gets a
// fresh Session.
func NewController(sess *Session, loc LocationSource) *Controller {
	if sess == nil {
		sess = New()
	}
	return &Controller{sess: sess, loc: loc, now: func() time.Time { return time.Now().UTC() }}
}

// Session returns the session whose buffers this controller gates.
func (c *Controller) Session() *Session {
	if c == nil {
		return nil
	}
	return c.sess
}

// OnAcceptedFix registers fn to run after each fix the session keeps, with
// the fix as stored. Fixes dropped because tracking ended never reach fn.
// It takes effect at the next Start.
func (c *Controller) OnAcceptedFix(fn func(track.LocationFix)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFix = fn
}

// Start begins a new session. It is a no-op while already tracking. On a
// location refusal the controller returns to Idle, anything buffered while
// subscribing is discarded and the error is returned.
func (c *Controller) Start(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("session: controller is nil")
	}
	if ctx == nil {
		return fmt.Errorf("session: ctx is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Tracking {
		return nil
	}

	c.sess.begin()
	c.state = Tracking
	c.id = uuid.NewString()
	c.startedAt = c.now()
	c.stoppedAt = time.Time{}

	if c.loc != nil {
		onFix := c.onFix
		deliver := func(fix track.LocationFix) {
			stored, ok := c.sess.acceptFix(fix)
			if ok && onFix != nil {
				onFix(stored)
			}
		}
		if err := c.loc.Subscribe(ctx, deliver); err != nil {
			c.sess.end()
			c.sess.discard()
			id := c.id
			c.state = Idle
			c.id = ""
			c.startedAt = time.Time{}
			if errors.Is(err, ErrPermissionDenied) {
				log.Printf("session start refused id=%s: %v", id, err)
				return err
			}
			log.Printf("session start failed id=%s: %v", id, err)
			return fmt.Errorf("session: location subscribe: %w", err)
		}
	}

	log.Printf("session started id=%s", c.id)
	return nil
}

// Stop ends the session. Buffers keep their contents until the next Start.
// It is a no-op while idle.
func (c *Controller) Stop() error {
	if c == nil {
		return fmt.Errorf("session: controller is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Tracking {
		return nil
	}

	c.sess.end()
	c.state = Idle
	c.stoppedAt = c.now()

	var err error
	if c.loc != nil {
		if uerr := c.loc.Unsubscribe(); uerr != nil {
			// The session is stopped regardless; report the leak to the caller.
			err = fmt.Errorf("session: location unsubscribe: %w", uerr)
		}
	}
	a, f := c.sess.Counts()
	log.Printf("session stopped id=%s accels=%d fixes=%d", c.id, a, f)
	return err
}

// State returns the current acquisition state.
func (c *Controller) State() State {
	if c == nil {
		return Idle
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Info returns a description of the current or most recent session.
func (c *Controller) Info() Info {
	if c == nil {
		return Info{}
	}
	c.mu.Lock()
	info := Info{State: c.state, ID: c.id, StartedAt: c.startedAt, StoppedAt: c.stoppedAt}
	c.mu.Unlock()
	info.Accels, info.Fixes = c.sess.Counts()
	return info
}
