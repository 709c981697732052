// Package session wires inbound participant events to the room
// registry, countdown coordinator and reservation arbitration, and
// pushes the resulting state transitions through the fanout.
package session

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/internal/quiz/countdown"
	"github.com/quizwire/quizwire/internal/quiz/events"
	"github.com/quizwire/quizwire/internal/quiz/fanout"
	"github.com/quizwire/quizwire/internal/quiz/models"
	"github.com/quizwire/quizwire/internal/quiz/reservation"
	"github.com/quizwire/quizwire/internal/quiz/room"
)

// Round is one question/answer cycle. The reservation slot lives on
// the round, so replacing the round replaces the slot and reservation
// state cannot leak across questions.
type Round struct {
	Question json.RawMessage
	Slot     *reservation.Slot
}

// Controller dispatches inbound events for all rooms. Mutations to a
// room's round are serialized behind a per-room lock, so broadcasts
// produced by one logical event are never interleaved with a racing
// event from the same room.
type Controller struct {
	registry  *room.Registry
	fanout    *fanout.Fanout
	countdown *countdown.Coordinator

	mu          sync.Mutex
	rounds      map[string]*Round
	listWaiters map[string]string
	roomLocks   map[string]*sync.Mutex
}

// NewController creates a controller over the given collaborators.
func NewController(registry *room.Registry, f *fanout.Fanout, cd *countdown.Coordinator) *Controller {
	return &Controller{
		registry:    registry,
		fanout:      f,
		countdown:   cd,
		rounds:      make(map[string]*Round),
		listWaiters: make(map[string]string),
		roomLocks:   make(map[string]*sync.Mutex),
	}
}

func (c *Controller) roomLock(roomID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.roomLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		c.roomLocks[roomID] = l
	}
	return l
}

func (c *Controller) activeRound(roomID string) *Round {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rounds[roomID]
}

// HandleNewUser registers a participant for the room and announces it:
// newUserOk back to the requester, newUser to everyone else. Every
// request mints a fresh id; a reconnecting client is a new
// participant.
func (c *Controller) HandleNewUser(roomID string, conn models.Sender, data json.RawMessage) (*models.Participant, error) {
	l := c.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	displayName := events.Field(data, "displayName")
	role := models.ParseRole(events.Field(data, "role"))

	p := c.registry.Register(roomID, displayName, role, conn)

	payload, err := events.Decorate(data, map[string]any{"userId": p.ID})
	if err != nil {
		c.registry.Unregister(roomID, p.ID)
		return nil, err
	}

	c.fanout.SendTo(roomID, p.ID, events.NewUserOk, payload)
	c.fanout.BroadcastExcept(roomID, events.NewUser, payload, p.ID)

	log.Info().
		Str("room_id", roomID).
		Str("participant_id", p.ID).
		Str("role", string(role)).
		Msg("participant joined")

	return p, nil
}

// HandleEvent dispatches one inbound event from a registered
// participant. Events referencing a stale participant are dropped.
func (c *Controller) HandleEvent(roomID, participantID, event string, data json.RawMessage) {
	l := c.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	// Checked under the room lock so an eviction racing the dispatch
	// cannot let one last event through.
	if _, ok := c.registry.Get(roomID, participantID); !ok {
		log.Debug().
			Str("room_id", roomID).
			Str("participant_id", participantID).
			Str("event", event).
			Msg("event from unknown participant, dropping")
		return
	}

	switch event {
	case events.UserListRequest:
		c.handleUserListRequest(roomID, participantID)
	case events.UserDataRequestAck:
		c.handleUserDataRequestAck(roomID, data)
	case events.NewQuestion:
		c.handleNewQuestion(roomID, participantID, data)
	case events.StartCounter:
		c.handleStartCounter(roomID, participantID, data)
	case events.StopCounter:
		c.countdown.Cancel(roomID)
	case events.ReserveResponse:
		c.handleReserve(roomID, participantID, data)
	case events.ReservationConfirmation:
		c.handleConfirm(roomID, data)
	case events.UserGivingAnswer:
		c.handleGivenAnswer(roomID, data)
	case events.WrongAnswer:
		c.handleAnswerOutcome(roomID, events.WrongAnswerGiven, data)
	case events.RightAnswer:
		c.handleAnswerOutcome(roomID, events.RightAnswerGiven, data)
	case events.ReservationCounter:
		c.fanout.BroadcastExcept(roomID, events.NewReservationCounterValue, data, participantID)
	default:
		log.Warn().Str("event", event).Str("room_id", roomID).Msg("unknown event, ignoring")
	}
}

// handleUserListRequest starts the list exchange: the requester is
// remembered and userDataRequest goes to everyone else; their acks are
// relayed back to the requester alone.
func (c *Controller) handleUserListRequest(roomID, participantID string) {
	c.mu.Lock()
	c.listWaiters[roomID] = participantID
	c.mu.Unlock()

	c.fanout.BroadcastExcept(roomID, events.UserDataRequest, nil, participantID)
}

func (c *Controller) handleUserDataRequestAck(roomID string, data json.RawMessage) {
	c.mu.Lock()
	waiter, ok := c.listWaiters[roomID]
	c.mu.Unlock()

	if !ok {
		log.Debug().Str("room_id", roomID).Msg("user data ack with no pending list request")
		return
	}
	c.fanout.SendTo(roomID, waiter, events.UserListDataResponse, data)
}

// handleNewQuestion replaces the active round. The previous round's
// timer handle is round state, so any running countdown dies with it.
func (c *Controller) handleNewQuestion(roomID, senderID string, data json.RawMessage) {
	c.countdown.Cancel(roomID)

	c.mu.Lock()
	c.rounds[roomID] = &Round{Question: data, Slot: reservation.NewSlot()}
	c.mu.Unlock()

	c.fanout.BroadcastExcept(roomID, events.NewQuestionToAnswer, data, senderID)

	log.Info().Str("room_id", roomID).Msg("new round started")
}

func (c *Controller) handleStartCounter(roomID, participantID string, data json.RawMessage) {
	var v events.CounterValue
	if err := json.Unmarshal(data, &v); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("malformed startCounter payload")
		return
	}
	c.countdown.Start(roomID, participantID, v.Value)
}

// handleReserve arbitrates the reservation race. The winner is
// announced to the room; a loser is told the existing holder directly
// instead of a new one being broadcast.
func (c *Controller) handleReserve(roomID, participantID string, data json.RawMessage) {
	round := c.activeRound(roomID)
	if round == nil {
		log.Warn().Str("room_id", roomID).Str("participant_id", participantID).Msg("reserve with no active round")
		return
	}

	// Decorate before arbitration: a payload that cannot be announced
	// must not take the slot.
	payload, derr := events.Decorate(data, map[string]any{"userId": participantID})
	if derr != nil {
		log.Warn().Err(derr).Str("room_id", roomID).Str("participant_id", participantID).Msg("malformed reserve payload, dropping")
		return
	}

	err := round.Slot.Reserve(participantID)
	if err == nil {
		c.fanout.Broadcast(roomID, events.UserReservedResponse, payload)
		return
	}

	var reserved *reservation.AlreadyReservedError
	if errors.As(err, &reserved) {
		holder := map[string]any{"userId": reserved.Holder}
		if p, ok := c.registry.Get(roomID, reserved.Holder); ok {
			holder["displayName"] = p.DisplayName
		}
		c.fanout.SendTo(roomID, participantID, events.UserReservedResponse, holder)
		log.Debug().
			Str("room_id", roomID).
			Str("participant_id", participantID).
			Str("holder", reserved.Holder).
			Msg("reservation race lost")
	}
}

func (c *Controller) handleConfirm(roomID string, data json.RawMessage) {
	round := c.activeRound(roomID)
	if round == nil {
		log.Warn().Str("room_id", roomID).Msg("confirmation with no active round")
		return
	}

	holderID := events.Field(data, "userId")
	if err := round.Slot.Confirm(holderID); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Str("participant_id", holderID).Msg("reservation confirm rejected")
		return
	}
	c.fanout.Broadcast(roomID, events.UserReservationConfirm, data)
}

// handleGivenAnswer routes a player's answer to the master instead of
// broadcasting it for everyone to filter client-side.
func (c *Controller) handleGivenAnswer(roomID string, data json.RawMessage) {
	if sent := c.fanout.SendToRole(roomID, models.RoleMaster, events.GivenAnswer, data); sent == 0 {
		log.Warn().Str("room_id", roomID).Msg("answer given but no master in room")
	}
}

// handleAnswerOutcome settles a confirmed reservation. Freeing the
// slot always broadcasts freeReservations first, so clients re-enable
// their reserve controls before seeing the outcome.
func (c *Controller) handleAnswerOutcome(roomID, outcomeEvent string, data json.RawMessage) {
	round := c.activeRound(roomID)
	if round == nil {
		log.Warn().Str("room_id", roomID).Str("event", outcomeEvent).Msg("answer outcome with no active round")
		return
	}

	var err error
	if outcomeEvent == events.RightAnswerGiven {
		err = round.Slot.MarkRight()
	} else {
		err = round.Slot.MarkWrong()
	}
	if err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Str("event", outcomeEvent).Msg("answer outcome rejected")
		return
	}

	c.fanout.Broadcast(roomID, events.FreeReservations, nil)
	c.fanout.Broadcast(roomID, outcomeEvent, data)
}

// HandleDisconnect tears down a participant: it leaves the registry,
// the room is told, a countdown it was driving is cancelled, and a
// reservation it held is freed.
func (c *Controller) HandleDisconnect(roomID, participantID string) {
	if participantID == "" {
		return
	}

	l := c.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	c.registry.Unregister(roomID, participantID)
	c.fanout.Broadcast(roomID, events.UserLeftTheRoom, events.UserLeft{UserID: participantID})

	if c.countdown.CancelOwnedBy(roomID, participantID) {
		log.Info().Str("room_id", roomID).Str("participant_id", participantID).Msg("cancelled countdown of departed participant")
	}

	c.mu.Lock()
	round := c.rounds[roomID]
	if c.listWaiters[roomID] == participantID {
		delete(c.listWaiters, roomID)
	}
	empty := c.registry.Count(roomID) == 0
	if empty {
		delete(c.rounds, roomID)
		delete(c.listWaiters, roomID)
		round = nil
	}
	c.mu.Unlock()

	if round != nil && round.Slot.Release(participantID) {
		c.fanout.Broadcast(roomID, events.FreeReservations, nil)
	}
	if empty {
		c.countdown.Cancel(roomID)
	}

	log.Info().Str("room_id", roomID).Str("participant_id", participantID).Msg("participant left")
}
