package sync

import "errors"

var (
	// ErrConflict is the optimistic-lock failure: the connection's version
	// changed between attempt start and commit, meaning another attempt
	// won the race. The losing attempt must leave no state change behind.
	ErrConflict = errors.New("connection version changed since attempt start")

	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionRevoked  = errors.New("connection is revoked")
)
