package session

import "errors"

var (
	// ErrTurnInFlight is returned when a turn is already sending, streaming
	// or synthesizing.
	ErrTurnInFlight = errors.New("a turn is already in flight")
	// ErrRecordingActive is returned by operations that would produce audio
	// while the microphone is in use.
	ErrRecordingActive = errors.New("recording in progress")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrEmptyReply      = errors.New("chat stream ended without a reply")
	ErrClosed          = errors.New("session closed")
)
