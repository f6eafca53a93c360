package room

import "errors"

var (
	// ErrRoomNotFound is returned for rooms that are absent or expired.
	ErrRoomNotFound = errors.New("room not found")

	// ErrStoreUnavailable wraps backend failures that survived the client's retries.
	ErrStoreUnavailable = errors.New("room store unavailable")

	// ErrValidation wraps input rejected before any state change.
	ErrValidation = errors.New("validation failed")
)
