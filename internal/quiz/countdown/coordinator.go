// Package countdown runs the authoritative per-room countdown timer.
package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/internal/quiz/events"
)

// Broadcaster delivers an event to every member of a room.
type Broadcaster interface {
	Broadcast(roomID, event string, payload any)
}

// Coordinator owns at most one live countdown per room. Ticks are
// scheduled against absolute deadlines computed from the start
// instant, so per-tick sleep error does not accumulate across long
// countdowns.
type Coordinator struct {
	clock clockwork.Clock
	bcast Broadcaster

	mu      sync.Mutex
	running map[string]*run
}

type run struct {
	ownerID  string
	cancel   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (r *run) stop() {
	r.stopOnce.Do(func() { close(r.cancel) })
}

// NewCoordinator creates a coordinator on the real clock.
func NewCoordinator(b Broadcaster) *Coordinator {
	return NewCoordinatorWithClock(b, clockwork.NewRealClock())
}

// NewCoordinatorWithClock creates a coordinator on the given clock.
// Tests pass a fake clock to drive ticks deterministically.
func NewCoordinatorWithClock(b Broadcaster, clock clockwork.Clock) *Coordinator {
	return &Coordinator{
		clock:   clock,
		bcast:   b,
		running: make(map[string]*run),
	}
}

// Start begins a countdown of budgetSeconds for the room, emitting one
// newCounterValue per second from budgetSeconds down to 0 and a
// terminal counterExpired afterwards. If a countdown is already
// running for the room it is cancelled first; the last caller wins,
// and ticks from the two timers never interleave.
func (c *Coordinator) Start(roomID, ownerID string, budgetSeconds int) {
	if budgetSeconds < 0 {
		log.Warn().Str("room_id", roomID).Int("budget", budgetSeconds).Msg("ignoring countdown with negative budget")
		return
	}

	r := &run{
		ownerID: ownerID,
		cancel:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.running[roomID]
	c.running[roomID] = r
	c.mu.Unlock()

	if prev != nil {
		prev.stop()
		<-prev.done
		log.Debug().Str("room_id", roomID).Msg("replaced running countdown")
	}

	go c.loop(roomID, r, budgetSeconds)
}

func (c *Coordinator) loop(roomID string, r *run, budget int) {
	defer func() {
		c.mu.Lock()
		if c.running[roomID] == r {
			delete(c.running, roomID)
		}
		c.mu.Unlock()
		close(r.done)
	}()

	start := c.clock.Now()
	for elapsed := 0; elapsed <= budget; elapsed++ {
		if elapsed == 0 {
			// First tick is immediate, but a cancel may have raced
			// the start.
			select {
			case <-r.cancel:
				return
			default:
			}
		} else {
			deadline := start.Add(time.Duration(elapsed) * time.Second)
			timer := c.clock.NewTimer(deadline.Sub(c.clock.Now()))
			select {
			case <-timer.Chan():
			case <-r.cancel:
				stopAndDrainTimer(timer)
				log.Debug().Str("room_id", roomID).Int("remaining", budget-elapsed+1).Msg("countdown cancelled")
				return
			}
		}
		c.bcast.Broadcast(roomID, events.NewCounterValue, events.CounterValue{Value: budget - elapsed})
	}

	c.bcast.Broadcast(roomID, events.CounterExpired, nil)
	log.Debug().Str("room_id", roomID).Int("budget", budget).Msg("countdown expired")
}

// stopAndDrainTimer safely stops a timer and drains its channel, per
// the time.Timer.Stop() documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// Cancel stops the room's countdown if one is running. The cancel is
// cooperative and observed before the next scheduled tick; no further
// ticks are emitted once the loop sees it.
func (c *Coordinator) Cancel(roomID string) {
	c.mu.Lock()
	r := c.running[roomID]
	if r != nil {
		delete(c.running, roomID)
	}
	c.mu.Unlock()

	if r != nil {
		r.stop()
	}
}

// CancelOwnedBy stops the room's countdown only if ownerID started it.
// Used on disconnect so a departing master cannot orphan a timer.
// Returns true if a countdown was cancelled.
func (c *Coordinator) CancelOwnedBy(roomID, ownerID string) bool {
	c.mu.Lock()
	r := c.running[roomID]
	if r == nil || r.ownerID != ownerID {
		c.mu.Unlock()
		return false
	}
	delete(c.running, roomID)
	c.mu.Unlock()

	r.stop()
	return true
}

// Running reports whether the room has a live countdown.
func (c *Coordinator) Running(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running[roomID] != nil
}

// Owner returns the participant that started the room's countdown.
func (c *Coordinator) Owner(roomID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r := c.running[roomID]; r != nil {
		return r.ownerID, true
	}
	return "", false
}
