package models

import "time"

// Role identifies what a participant is allowed to drive in a room.
type Role string

const (
	RoleMaster Role = "master"
	RolePlayer Role = "player"
)

// ParseRole maps a client-supplied role string to a Role, defaulting
// to player for anything unrecognized.
func ParseRole(s string) Role {
	if s == string(RoleMaster) {
		return RoleMaster
	}
	return RolePlayer
}

// Sender is the transport handle owned by a participant. TrySend must
// not block: it returns false when the transport is gone or its buffer
// is full, and the caller treats that as a delivery failure.
type Sender interface {
	TrySend(data []byte) bool
}

// Participant is a connected client within a room. The ID is immutable
// once assigned and unique for the registry's lifetime.
type Participant struct {
	ID          string
	DisplayName string
	Role        Role
	Conn        Sender
	JoinedAt    time.Time
}
