// Package room tracks connected participants per room.
package room

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/internal/quiz/identity"
	"github.com/quizwire/quizwire/internal/quiz/models"
)

// Registry is the authoritative member set for every room. Rooms exist
// implicitly while at least one participant is registered and share no
// state with each other. All mutations are linearized behind the
// registry mutex.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*models.Participant

	// newID is swappable for tests; defaults to identity.NewID.
	newID func() string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]*models.Participant),
		newID: identity.NewID,
	}
}

// Register allocates a fresh id, stores the participant and returns it.
// A reconnecting client gets a new id; identity is per-connection.
func (r *Registry) Register(roomID, displayName string, role models.Role, conn models.Sender) *models.Participant {
	p := &models.Participant{
		ID:          r.newID(),
		DisplayName: displayName,
		Role:        role,
		Conn:        conn,
		JoinedAt:    time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]*models.Participant)
	}
	r.rooms[roomID][p.ID] = p

	log.Debug().
		Str("room_id", roomID).
		Str("participant_id", p.ID).
		Str("role", string(role)).
		Int("members", len(r.rooms[roomID])).
		Msg("participant registered")

	return p
}

// Unregister removes a participant. An absent id is not an error: a
// disconnect may race a prior removal (e.g. fanout eviction), so the
// second removal is logged and dropped.
func (r *Registry) Unregister(roomID, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		log.Debug().Str("room_id", roomID).Str("participant_id", participantID).Msg("unregister on unknown room")
		return
	}
	if _, ok := members[participantID]; !ok {
		log.Debug().Str("room_id", roomID).Str("participant_id", participantID).Msg("unregister on unknown participant")
		return
	}

	delete(members, participantID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}

	log.Debug().
		Str("room_id", roomID).
		Str("participant_id", participantID).
		Int("members", len(members)).
		Msg("participant unregistered")
}

// Members returns a snapshot of the room's member set. The slice is
// safe to iterate without holding any lock; order is unspecified.
func (r *Registry) Members(roomID string) []*models.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]*models.Participant, 0, len(members))
	for _, p := range members {
		out = append(out, p)
	}
	return out
}

// Get looks up a single participant by id.
func (r *Registry) Get(roomID, participantID string) (*models.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.rooms[roomID][participantID]
	return p, ok
}

// Count returns the number of participants in a room.
func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}
