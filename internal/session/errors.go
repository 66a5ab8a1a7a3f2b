package session

import "errors"

var (
	// ErrSessionNotFound is returned for an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrUnknownAppliance is returned when the inventory has no such name.
	ErrUnknownAppliance = errors.New("unknown appliance")
	// ErrTooManySessions is returned when security.max_sessions is reached.
	ErrTooManySessions = errors.New("max sessions reached")
	// ErrLockedOut is returned while an appliance is locked after repeated
	// authentication failures.
	ErrLockedOut = errors.New("authentication locked out")
	// ErrLoginRejected is returned when the appliance refuses the credentials
	// it asked for on the console.
	ErrLoginRejected = errors.New("login rejected")
	// ErrCommandBlocked is returned when the command filter refuses a line.
	ErrCommandBlocked = errors.New("command blocked")
)
