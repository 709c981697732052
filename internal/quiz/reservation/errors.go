package reservation

import (
	"errors"
	"fmt"
)

// ErrNotHolder is returned when a confirm names a participant other
// than the pending holder.
var ErrNotHolder = errors.New("participant does not hold the reservation")

// ErrNotConfirmed is returned when an answer outcome is recorded while
// no reservation is confirmed.
var ErrNotConfirmed = errors.New("no confirmed reservation")

// AlreadyReservedError is returned to a participant that lost the
// reservation race. Holder identifies the participant that won, so the
// caller can announce the actual winner.
type AlreadyReservedError struct {
	Holder string
}

func (e *AlreadyReservedError) Error() string {
	return fmt.Sprintf("answer already reserved by %s", e.Holder)
}
