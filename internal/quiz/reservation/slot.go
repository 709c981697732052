// Package reservation arbitrates the exclusive right to answer the
// current question.
package reservation

import "sync"

// State of a reservation slot. Rejection (master decline or a pending
// holder disconnecting) transitions straight back to Free; it has no
// observable dwell time in the protocol.
type State int

const (
	StateFree State = iota
	StatePending
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	default:
		return "free"
	}
}

// Slot is the reservation slot of one round. At most one non-free
// reservation exists at a time; all transitions happen atomically
// under the slot mutex, so two racing Reserve calls can never both
// observe Free.
type Slot struct {
	mu     sync.Mutex
	state  State
	holder string
}

// NewSlot returns a free slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Reserve attempts Free -> Pending(participantID). Exactly one of any
// set of concurrent callers succeeds; the rest get an
// AlreadyReservedError naming the winner.
func (s *Slot) Reserve(participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFree {
		return &AlreadyReservedError{Holder: s.holder}
	}
	s.state = StatePending
	s.holder = participantID
	return nil
}

// Confirm moves Pending(participantID) -> Confirmed. Any mismatch
// between the confirming principal and the pending holder fails.
func (s *Slot) Confirm(participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePending || s.holder != participantID {
		return ErrNotHolder
	}
	s.state = StateConfirmed
	return nil
}

// MarkWrong records a wrong answer and frees the slot so other
// participants may retry the same question.
func (s *Slot) MarkWrong() error {
	return s.settle()
}

// MarkRight records a right answer and ends the round's reservation
// lifecycle, freeing the slot.
func (s *Slot) MarkRight() error {
	return s.settle()
}

func (s *Slot) settle() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfirmed {
		return ErrNotConfirmed
	}
	s.state = StateFree
	s.holder = ""
	return nil
}

// Release frees the slot if participantID currently holds it, in any
// non-free state. Returns true if the slot was freed. Used when the
// holder disconnects mid-round.
func (s *Slot) Release(participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFree || s.holder != participantID {
		return false
	}
	s.state = StateFree
	s.holder = ""
	return true
}

// Current returns the state and holder as an atomic snapshot.
func (s *Slot) Current() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.holder
}
