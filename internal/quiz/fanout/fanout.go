// Package fanout delivers events to the members of a room.
package fanout

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/internal/quiz/events"
	"github.com/quizwire/quizwire/internal/quiz/models"
)

// Registry is the member set the fanout targets.
type Registry interface {
	Members(roomID string) []*models.Participant
	Unregister(roomID, participantID string)
}

// Mirror receives a copy of every room-wide broadcast. Implementations
// must be best-effort and non-blocking.
type Mirror interface {
	Publish(roomID, event string, payload json.RawMessage)
}

// Fanout broadcasts events to room members. Delivery is best-effort:
// a member whose transport cannot accept the frame is skipped and
// unregistered, and the broadcast continues to the rest. Frames pushed
// by a single caller reach each member in the order they were pushed.
type Fanout struct {
	registry Registry
	mirror   Mirror
}

// NewFanout creates a fanout over the given registry.
func NewFanout(registry Registry) *Fanout {
	return &Fanout{registry: registry}
}

// SetMirror installs an optional broadcast mirror.
func (f *Fanout) SetMirror(m Mirror) {
	f.mirror = m
}

// Broadcast delivers the event to every member of the room.
func (f *Fanout) Broadcast(roomID, event string, payload any) {
	f.deliver(roomID, event, payload, "")
}

// BroadcastExcept delivers the event to every member of the room
// except excludeID, typically the sender that already has the data.
func (f *Fanout) BroadcastExcept(roomID, event string, payload any, excludeID string) {
	f.deliver(roomID, event, payload, excludeID)
}

// SendTo delivers the event to a single participant. Returns false if
// the participant is unknown or unreachable.
func (f *Fanout) SendTo(roomID, participantID, event string, payload any) bool {
	frame, _, err := encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return false
	}

	for _, p := range f.registry.Members(roomID) {
		if p.ID != participantID {
			continue
		}
		if !p.Conn.TrySend(frame) {
			f.evict(roomID, p)
			return false
		}
		return true
	}
	log.Debug().Str("room_id", roomID).Str("participant_id", participantID).Str("event", event).Msg("targeted send to unknown participant")
	return false
}

// SendToRole delivers the event to every member holding the given
// role. Returns the number of successful deliveries.
func (f *Fanout) SendToRole(roomID string, role models.Role, event string, payload any) int {
	frame, _, err := encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return 0
	}

	sent := 0
	for _, p := range f.registry.Members(roomID) {
		if p.Role != role {
			continue
		}
		if p.Conn.TrySend(frame) {
			sent++
		} else {
			f.evict(roomID, p)
		}
	}
	return sent
}

func (f *Fanout) deliver(roomID, event string, payload any, excludeID string) {
	frame, data, err := encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}

	failed := 0
	members := f.registry.Members(roomID)
	for _, p := range members {
		if p.ID == excludeID {
			continue
		}
		if !p.Conn.TrySend(frame) {
			failed++
			f.evict(roomID, p)
		}
	}

	if failed > 0 {
		log.Warn().
			Str("room_id", roomID).
			Str("event", event).
			Int("failed", failed).
			Int("members", len(members)).
			Msg("some deliveries failed")
	}

	if f.mirror != nil {
		f.mirror.Publish(roomID, event, data)
	}
}

func (f *Fanout) evict(roomID string, p *models.Participant) {
	log.Warn().
		Str("room_id", roomID).
		Str("participant_id", p.ID).
		Msg("participant unreachable, removing from room")
	f.registry.Unregister(roomID, p.ID)
}

// encode marshals the payload and wraps it in the wire envelope. The
// envelope is marshalled once per fanout, not per member.
func encode(event string, payload any) (frame []byte, data json.RawMessage, err error) {
	if payload != nil {
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, nil, err
		}
	}
	frame, err = json.Marshal(events.Envelope{Event: event, Data: data})
	if err != nil {
		return nil, nil, err
	}
	return frame, data, nil
}
