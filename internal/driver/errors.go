package driver

import (
	"errors"
	"fmt"
)

var (
	// ErrPromptNotRecognized means the discovered prompt does not end in a
	// configured terminator.
	ErrPromptNotRecognized = errors.New("appliance prompt not recognized")

	// ErrModeTransitionFailed means a configuration-mode transition was not
	// confirmed by the follow-up probe.
	ErrModeTransitionFailed = errors.New("configuration mode transition failed")

	// ErrInvalidProbeArguments means IsInConfigMode was called without a marker.
	ErrInvalidProbeArguments = errors.New("config mode probe needs a marker")

	// ErrAlreadyPrepared is returned by a second PrepareSession.
	ErrAlreadyPrepared = errors.New("session already prepared")
)

// PromptNotRecognizedError carries the line that failed the terminator check.
type PromptNotRecognizedError struct {
	Raw string
}

func (e *PromptNotRecognizedError) Error() string {
	return fmt.Sprintf("%s: %q", ErrPromptNotRecognized, e.Raw)
}

// Is reports ErrPromptNotRecognized.
func (e *PromptNotRecognizedError) Is(target error) bool {
	return target == ErrPromptNotRecognized
}

// Transition directions.
const (
	DirectionEnter = "enter"
	DirectionExit  = "exit"
)

// ModeTransitionError reports an unconfirmed transition together with what
// the appliance printed in response to the transition command.
type ModeTransitionError struct {
	Direction string
	Output    string
}

func (e *ModeTransitionError) Error() string {
	return fmt.Sprintf("failed to %s configuration mode", e.Direction)
}

// Is reports ErrModeTransitionFailed.
func (e *ModeTransitionError) Is(target error) bool {
	return target == ErrModeTransitionFailed
}
