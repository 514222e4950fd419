package quiz

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by room operations. They are returned before any
// state is mutated.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrUserNotFound       = errors.New("user not found in room")
	ErrNotHost            = errors.New("requester is not the room host")
	ErrBanned             = errors.New("display name is excluded from this room")
	ErrRoomFull           = errors.New("room is full")
	ErrTargetNotConnected = errors.New("target player is not connected")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
