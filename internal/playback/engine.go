package playback

import (
	"context"

	"github.com/sjawhar/parlo/internal/lifecycle"
)

// Engine decodes an encoded audio buffer into a playable track. Open blocks
// until duration metadata is known.
type Engine interface {
	Open(ctx context.Context, data []byte) (Track, error)
}

// Track is one decoded, playable audio buffer. Times are in seconds.
type Track interface {
	Duration() float64
	Position() float64
	Seek(seconds float64) error
	// Resume starts or continues output. onEnd runs once when the track
	// plays to completion, never from inside the audio callback.
	Resume(onEnd func()) error
	Pause() float64
	// Tap observes decoded mono output as it is rendered.
	Tap(fn func([]float64)) lifecycle.Release
	Close() error
}
