package session

import "fmt"

// ConflictError is returned when loading a different channel would steal the
// shared transport from sessions that are still using it. The caller can name
// the blocking channel when explaining the wait condition.
type ConflictError struct {
	// Blocking is the channel number the transport is currently serving.
	Blocking uint32
	// Sessions is how many registered sessions hold it there.
	Sessions int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("channel %d is held by %d active session(s)", e.Blocking, e.Sessions)
}
