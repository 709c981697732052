package events

import "encoding/json"

// Envelope is the wire frame exchanged with clients: a named event
// plus an opaque structured payload. Field names are part of the
// client protocol and must not change.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names (client -> server).
const (
	NewUserRequest          = "newUserRequest"
	UserListRequest         = "userListRequest"
	UserDataRequestAck      = "userDataRequestAck"
	NewQuestion             = "newQuestion"
	StartCounter            = "startCounter"
	StopCounter             = "stopCounter"
	ReserveResponse         = "reserveResponse"
	ReservationConfirmation = "userReservationConfirmaition" // typo is part of the protocol
	UserGivingAnswer        = "userGivingAnswer"
	WrongAnswer             = "wrongAnswer"
	RightAnswer             = "rightAnswer"
	ReservationCounter      = "reservationCounter"
)

// Outbound event names (server -> clients).
const (
	NewUserOk                  = "newUserOk"
	NewUser                    = "newUser"
	UserDataRequest            = "userDataRequest"
	UserListDataResponse       = "userListDataResponse"
	UserLeftTheRoom            = "userLeftTheRoom"
	NewQuestionToAnswer        = "newQuestionToAnswer"
	NewCounterValue            = "newCounterValue"
	CounterExpired             = "counterExpired"
	UserReservedResponse       = "userReservedResponse"
	UserReservationConfirm     = "userReservationConfirm"
	GivenAnswer                = "givenAnswer"
	FreeReservations           = "freeReservations"
	WrongAnswerGiven           = "wrongAnswerGiven"
	RightAnswerGiven           = "rightAnswerGiven"
	NewReservationCounterValue = "newReservationCounterValue"
)

// CounterValue is the payload of startCounter, newCounterValue,
// reservationCounter and newReservationCounterValue.
type CounterValue struct {
	Value int `json:"value"`
}

// UserLeft is the payload of userLeftTheRoom.
type UserLeft struct {
	UserID string `json:"userId"`
}

// Decorate merges userId (and any extra fields) into a client payload
// without dropping fields the server does not know about. Relay events
// carry client-defined payloads, so passthrough has to be lossless.
func Decorate(data json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	payload := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
	}
	for k, v := range fields {
		payload[k] = v
	}
	return json.Marshal(payload)
}

// Field extracts a single string field from an opaque payload.
// Returns "" if the payload is empty or the field is absent.
func Field(data json.RawMessage, key string) string {
	if len(data) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
