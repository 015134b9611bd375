package session

import "errors"

var (
	// ErrNoRewardSource is returned when a session is configured without a
	// reward source.
	ErrNoRewardSource = errors.New("session: no reward source")

	// ErrNotActive is returned when stepping a session that has finished,
	// failed or been closed.
	ErrNotActive = errors.New("session: session is not active")

	// ErrNotFound is returned when a session ID is unknown to the manager.
	ErrNotFound = errors.New("session: session not found")
)
