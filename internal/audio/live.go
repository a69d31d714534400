package audio

import (
	"sync"

	"github.com/sjawhar/parlo/internal/lifecycle"
)

// Live fans captured samples out to taps while a recording is active. A
// visualizer binds to it the same way it binds to a playback track.
type Live struct {
	mu     sync.RWMutex
	nextID int
	taps   map[int]func([]float64)
}

func newLive() *Live {
	return &Live{taps: make(map[int]func([]float64))}
}

// Tap registers fn for every captured buffer. The returned release detaches it.
func (l *Live) Tap(fn func([]float64)) lifecycle.Release {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.taps[id] = fn
	l.mu.Unlock()

	return lifecycle.Once(func() error {
		l.mu.Lock()
		delete(l.taps, id)
		l.mu.Unlock()
		return nil
	})
}

func (l *Live) Taps() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.taps)
}

func (l *Live) publish(samples []float64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, fn := range l.taps {
		fn(samples)
	}
}
