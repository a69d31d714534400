package playback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sjawhar/parlo/internal/conversation"
	"github.com/sjawhar/parlo/internal/lifecycle"
)

const defaultTickInterval = 100 * time.Millisecond

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTickInterval sets how often the playback position is published while
// playing.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// Controller owns the single active track. Every asynchronous result is
// tagged with the load generation that started it; results from a superseded
// generation are discarded.
type Controller struct {
	engine   Engine
	position conversation.PositionWriter
	logger   *slog.Logger
	interval time.Duration

	mu        sync.Mutex
	gen       uint64
	readiness Readiness
	track     Track
	resources *lifecycle.Scope
	cancel    context.CancelFunc
	settled   chan struct{}
	loadErr   error
	playing   bool
	pending   *float64
	lastPos   float64
	ticker    *lifecycle.Loop
	closed    bool

	subsMu sync.Mutex
	subs   map[chan Event]struct{}

	tapsMu  sync.RWMutex
	nextTap int
	taps    map[int]func([]float64)
}

// NewController returns an unloaded controller. position may be nil.
func NewController(engine Engine, position conversation.PositionWriter, opts ...Option) *Controller {
	c := &Controller{
		engine:   engine,
		position: position,
		logger:   slog.Default(),
		interval: defaultTickInterval,
		subs:     make(map[chan Event]struct{}),
		taps:     make(map[int]func([]float64)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load supersedes the current track with data and starts decoding it. The
// previous track's resources are released before Load returns. The returned
// generation identifies this load in events.
func (c *Controller) Load(data []byte) uint64 {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	old := c.detachLocked()
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.readiness = Loading
	c.loadErr = nil
	c.settled = make(chan struct{})
	c.mu.Unlock()

	c.release(old)
	c.setPosition(0)
	c.emit(Event{Type: EventLoading, Generation: gen})

	go c.resolve(ctx, gen, data)
	return gen
}

func (c *Controller) resolve(ctx context.Context, gen uint64, data []byte) {
	track, err := c.engine.Open(ctx, data)

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		if track != nil {
			_ = track.Close()
		}
		return
	}

	if err != nil {
		c.readiness = Unloaded
		c.pending = nil
		c.loadErr = fmt.Errorf("%w: %v", ErrDecodeFailure, err)
		loadErr := c.loadErr
		c.settleLocked()
		c.mu.Unlock()

		c.logger.Warn("audio decode failed", "generation", gen, "error", err)
		c.emit(Event{Type: EventFailed, Generation: gen, Err: loadErr})
		return
	}

	res := lifecycle.NewScope()
	_ = res.Add("track", track.Close)
	_ = res.Add("tap", track.Tap(c.publish))
	c.track = track
	c.resources = res
	c.readiness = Ready
	c.settleLocked()
	ready := Event{Type: EventReady, Generation: gen, Duration: track.Duration()}

	var started *Event
	if c.pending != nil {
		at := *c.pending
		c.pending = nil
		ev, err := c.playLocked(at)
		if err != nil {
			c.logger.Warn("deferred play failed", "generation", gen, "error", err)
		} else {
			started = &ev
		}
	}
	c.mu.Unlock()

	c.emit(ready)
	if started != nil {
		c.setPosition(started.Position)
		c.emit(*started)
	}
}

// Play seeks to at and resumes. Before readiness the request is remembered
// and applied once the track is ready; a later request replaces it.
func (c *Controller) Play(at float64) error {
	c.mu.Lock()
	switch c.readiness {
	case Unloaded:
		c.mu.Unlock()
		return ErrNotLoaded
	case Loading:
		v := at
		c.pending = &v
		c.mu.Unlock()
		return nil
	}
	ev, err := c.playLocked(at)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.setPosition(ev.Position)
	c.emit(ev)
	return nil
}

func (c *Controller) playLocked(at float64) (Event, error) {
	dur := c.track.Duration()
	at = clamp(at, dur)
	if err := c.track.Seek(at); err != nil {
		return Event{}, fmt.Errorf("seek track: %w", err)
	}

	gen := c.gen
	if err := c.track.Resume(func() { c.ended(gen) }); err != nil {
		return Event{}, fmt.Errorf("resume track: %w", err)
	}
	c.playing = true
	c.lastPos = at
	if c.ticker == nil {
		c.ticker = lifecycle.StartLoop(context.Background(), c.interval, c.tick(gen))
	}
	return Event{Type: EventPlaying, Generation: gen, Position: at, Duration: dur}, nil
}

// Pause freezes output and returns the exact position it stopped at.
func (c *Controller) Pause() float64 {
	c.mu.Lock()
	if c.readiness == Loading && c.pending != nil {
		c.pending = nil
		pos := c.lastPos
		gen := c.gen
		c.mu.Unlock()
		c.emit(Event{Type: EventPaused, Generation: gen, Position: pos})
		return pos
	}
	c.pending = nil
	if !c.playing || c.track == nil {
		pos := c.lastPos
		c.mu.Unlock()
		return pos
	}
	pos := c.track.Pause()
	c.playing = false
	c.lastPos = pos
	gen := c.gen
	dur := c.track.Duration()
	ticker := c.ticker
	c.ticker = nil
	c.mu.Unlock()

	ticker.Stop()
	c.setPosition(pos)
	c.emit(Event{Type: EventPaused, Generation: gen, Position: pos, Duration: dur})
	return pos
}

// Seek moves the playhead without changing play/pause state.
func (c *Controller) Seek(at float64) error {
	c.mu.Lock()
	switch c.readiness {
	case Unloaded:
		c.mu.Unlock()
		return ErrNotLoaded
	case Loading:
		if c.pending != nil {
			v := at
			c.pending = &v
		}
		c.mu.Unlock()
		return nil
	}
	at = clamp(at, c.track.Duration())
	if err := c.track.Seek(at); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("seek track: %w", err)
	}
	c.lastPos = at
	c.mu.Unlock()

	c.setPosition(at)
	return nil
}

// Reset releases the current track and returns to Unloaded.
func (c *Controller) Reset() {
	c.mu.Lock()
	wasLoaded := c.readiness != Unloaded
	old := c.detachLocked()
	c.gen++
	gen := c.gen
	c.readiness = Unloaded
	c.loadErr = nil
	c.mu.Unlock()

	c.release(old)
	c.setPosition(0)
	if wasLoaded {
		c.emit(Event{Type: EventUnloaded, Generation: gen})
	}
}

// WaitReady blocks until the current load settles.
func (c *Controller) WaitReady(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch c.readiness {
		case Ready:
			c.mu.Unlock()
			return nil
		case Unloaded:
			err := c.loadErr
			c.mu.Unlock()
			if err != nil {
				return err
			}
			return ErrNotLoaded
		}
		ch := c.settled
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing && c.track != nil {
		return c.track.Position()
	}
	return c.lastPos
}

func (c *Controller) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.track == nil {
		return 0
	}
	return c.track.Duration()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Active:     c.playing,
		Pending:    c.pending != nil,
		Position:   c.lastPos,
		Readiness:  c.readiness,
		Generation: c.gen,
	}
	if c.track != nil {
		st.Duration = c.track.Duration()
		if c.playing {
			st.Position = c.track.Position()
		}
	}
	return st
}

// Tap observes rendered output of whichever track is current. Taps survive
// loads; the release detaches fn.
func (c *Controller) Tap(fn func([]float64)) lifecycle.Release {
	c.tapsMu.Lock()
	id := c.nextTap
	c.nextTap++
	c.taps[id] = fn
	c.tapsMu.Unlock()

	return lifecycle.Once(func() error {
		c.tapsMu.Lock()
		delete(c.taps, id)
		c.tapsMu.Unlock()
		return nil
	})
}

func (c *Controller) Subscribe() chan Event {
	ch := make(chan Event, 32)
	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()
	return ch
}

func (c *Controller) Unsubscribe(ch chan Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
}

// Close releases everything and closes subscriber channels.
func (c *Controller) Close() error {
	c.Reset()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.subsMu.Lock()
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
	c.subsMu.Unlock()
	return nil
}

func (c *Controller) ended(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.playing || c.track == nil {
		c.mu.Unlock()
		return
	}
	c.playing = false
	if err := c.track.Seek(0); err != nil {
		c.logger.Warn("rewind after end failed", "error", err)
	}
	c.lastPos = 0
	dur := c.track.Duration()
	ticker := c.ticker
	c.ticker = nil
	c.mu.Unlock()

	ticker.Stop()
	c.setPosition(0)
	c.emit(Event{Type: EventEnded, Generation: gen, Duration: dur})
}

func (c *Controller) tick(gen uint64) func(time.Time) {
	return func(time.Time) {
		c.mu.Lock()
		if gen != c.gen || !c.playing || c.track == nil {
			c.mu.Unlock()
			return
		}
		pos := c.track.Position()
		c.lastPos = pos
		c.mu.Unlock()
		c.setPosition(pos)
	}
}

// detachLocked hands the current resources to the caller for release after
// the lock is dropped.
func (c *Controller) detachLocked() *lifecycle.Scope {
	detached := lifecycle.NewScope()
	if c.resources != nil {
		_ = detached.Add("resources", c.resources.Close)
	}
	if c.cancel != nil {
		_ = detached.AddFunc("load", c.cancel)
	}
	if c.ticker != nil {
		_ = detached.Add("ticker", c.ticker.Release)
	}
	c.settleLocked()
	c.resources = nil
	c.cancel = nil
	c.ticker = nil
	c.track = nil
	c.playing = false
	c.pending = nil
	c.lastPos = 0
	return detached
}

func (c *Controller) settleLocked() {
	if c.settled != nil {
		close(c.settled)
		c.settled = nil
	}
}

func (c *Controller) release(s *lifecycle.Scope) {
	if err := s.Close(); err != nil {
		c.logger.Warn("release playback resources failed", "error", err)
	}
}

func (c *Controller) setPosition(pos float64) {
	if c.position != nil {
		c.position.SetPosition(pos)
	}
}

func (c *Controller) publish(samples []float64) {
	c.tapsMu.RLock()
	defer c.tapsMu.RUnlock()
	for _, fn := range c.taps {
		fn(samples)
	}
}

func (c *Controller) emit(ev Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Warn("dropping playback event for slow subscriber", "type", ev.Type)
		}
	}
}

func clamp(at, dur float64) float64 {
	if math.IsNaN(at) || at < 0 {
		return 0
	}
	if dur > 0 && at > dur {
		return dur
	}
	return at
}
