package visual

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/parlo/internal/lifecycle"
)

type Mode int

const (
	ModeNone Mode = iota
	ModePlayback
	ModeLive
)

func (m Mode) String() string {
	switch m {
	case ModePlayback:
		return "playback"
	case ModeLive:
		return "live"
	}
	return "none"
}

// Source delivers mono samples to a tap until the release is called.
type Source interface {
	Tap(fn func([]float64)) lifecycle.Release
}

// Timeline reports playback position and duration in seconds.
type Timeline interface {
	Position() float64
	Duration() float64
}

type PlaybackSource interface {
	Source
	Timeline
}

// Canvas receives one frame per tick. Draw is called from the render loop
// and must not call back into the Visualizer.
type Canvas interface {
	Geometry() Geometry
	Draw(Frame)
}

type Options struct {
	Bins         int
	FPS          int
	ShowProgress bool
	// OnSeek receives the position produced by a click in playback mode.
	OnSeek func(seconds float64)
	Logger *slog.Logger
}

type binding struct {
	mode     Mode
	timeline Timeline
	scope    *lifecycle.Scope
}

// Visualizer holds at most one binding at a time. Binding a new source
// releases the previous binding's tap and render loop first.
type Visualizer struct {
	canvas Canvas
	opts   Options

	mu      sync.Mutex
	current *binding
	closed  bool
}

func NewVisualizer(canvas Canvas, opts Options) *Visualizer {
	if opts.Bins <= 0 {
		opts.Bins = DefaultBins
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Visualizer{canvas: canvas, opts: opts}
}

func (v *Visualizer) BindPlayback(src PlaybackSource) {
	v.bind(ModePlayback, src, src)
}

func (v *Visualizer) BindLive(src Source) {
	v.bind(ModeLive, src, nil)
}

func (v *Visualizer) bind(mode Mode, src Source, timeline Timeline) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.unbindLocked()

	analyser := NewAnalyser(v.opts.Bins)
	scope := lifecycle.NewScope()
	_ = scope.Add("tap", src.Tap(analyser.Write))

	levels := make([]byte, analyser.Bins())
	show := v.opts.ShowProgress && timeline != nil
	render := func(time.Time) {
		levels = analyser.FrequencyData(levels)
		progress := Progress{Show: show}
		if show {
			progress.Position = timeline.Position()
			progress.Duration = timeline.Duration()
		}
		frame := Layout(levels, v.canvas.Geometry(), progress)
		frame.Mode = mode
		v.canvas.Draw(frame)
	}
	loop := lifecycle.StartLoop(context.Background(), time.Second/time.Duration(v.opts.FPS), render)
	_ = scope.Add("render", loop.Release)

	v.current = &binding{mode: mode, timeline: timeline, scope: scope}
	v.opts.Logger.Debug("visualizer bound", "mode", mode.String())
}

// Unbind stops rendering and detaches from the current source. The render
// loop has exited when Unbind returns.
func (v *Visualizer) Unbind() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unbindLocked()
}

func (v *Visualizer) unbindLocked() {
	if v.current == nil {
		return
	}
	b := v.current
	v.current = nil
	if err := b.scope.Close(); err != nil {
		v.opts.Logger.Warn("release visualizer binding failed", "mode", b.mode.String(), "error", err)
	}
	v.canvas.Draw(Frame{Mode: ModeNone})
}

func (v *Visualizer) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return ModeNone
	}
	return v.current.mode
}

// Click maps an offset on the canvas to a seek position. It is a no-op in
// live mode or when the duration is unknown.
func (v *Visualizer) Click(x float64) (float64, bool) {
	v.mu.Lock()
	b := v.current
	v.mu.Unlock()
	if b == nil || b.mode != ModePlayback || b.timeline == nil {
		return 0, false
	}

	at, ok := SeekFromClick(x, v.canvas.Geometry().Width, b.timeline.Duration())
	if !ok {
		return 0, false
	}
	if v.opts.OnSeek != nil {
		v.opts.OnSeek(at)
	}
	return at, true
}

func (v *Visualizer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unbindLocked()
	v.closed = true
	return nil
}
