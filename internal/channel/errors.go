package channel

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is matched by every read that gave up waiting for its pattern.
	ErrTimeout = errors.New("channel read timeout")
	// ErrClosed is returned once the underlying stream is gone.
	ErrClosed = errors.New("channel closed")
)

// TimeoutError carries what had been received when a bounded read expired.
type TimeoutError struct {
	Pattern  string
	Buffered string
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pattern %q not seen after %s (buffered %d bytes)", e.Pattern, e.After, len(e.Buffered))
}

// Is reports ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
