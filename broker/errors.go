package broker

import "errors"

var (
	// ErrNotConnected reports that the terminal session is down. Ticks that
	// hit it abort their remaining broker-writing steps and retry next tick.
	ErrNotConnected = errors.New("broker: not connected")

	// ErrPositionNotFound reports a modify/close against a ticket the venue
	// no longer holds. Callers treat it as a cue to re-reconcile, not as a
	// failure to propagate.
	ErrPositionNotFound = errors.New("broker: position not found")

	// ErrInvalidVolume reports a volume outside the symbol's legal range.
	ErrInvalidVolume = errors.New("broker: invalid volume")
)
