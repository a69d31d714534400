package playback

import "errors"

var (
	ErrDecodeFailure = errors.New("audio decode failed")
	ErrNotLoaded     = errors.New("no audio loaded")
	ErrClosed        = errors.New("playback controller closed")
)
