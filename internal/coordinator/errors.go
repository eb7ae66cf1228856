package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrCooldownActive is returned when a refresh would start within the cooldown
	// of the previous refresh start.
	ErrCooldownActive = errors.New("token refresh cooldown active")

	// ErrQueueFull is returned when the waiter queue is at capacity.
	ErrQueueFull = errors.New("token refresh queue full")

	// ErrNoTokenAvailable is returned to a waiter when the settled refresh left no
	// access token to hand out.
	ErrNoTokenAvailable = errors.New("no access token available")

	// ErrQueueTimeout is returned to a waiter that aged out of the queue.
	ErrQueueTimeout = errors.New("timed out waiting for token refresh")

	// ErrNoRefreshToken is the cause of a RefreshError when nothing can be refreshed.
	ErrNoRefreshToken = errors.New("no refresh token stored")
)

// RefreshError reports a failed network refresh, either an explicit server
// rejection or a transport failure. The stored credentials have been cleared
// by the time it is returned.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
