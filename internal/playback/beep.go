package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"

	"github.com/sjawhar/parlo/internal/lifecycle"
)

const DefaultOutputRate = 44100

// BeepEngine plays tracks through the process-wide speaker. Every track is
// resampled to the speaker rate.
type BeepEngine struct {
	rate   beep.SampleRate
	buffer time.Duration

	mu          sync.Mutex
	initialized bool
}

func NewBeepEngine(outputRate int) *BeepEngine {
	if outputRate <= 0 {
		outputRate = DefaultOutputRate
	}
	return &BeepEngine{rate: beep.SampleRate(outputRate), buffer: 100 * time.Millisecond}
}

func (e *BeepEngine) ensureSpeaker() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}
	if err := speaker.Init(e.rate, e.rate.N(e.buffer)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	e.initialized = true
	return nil
}

func (e *BeepEngine) Open(ctx context.Context, data []byte) (Track, error) {
	if len(data) == 0 {
		return nil, errors.New("empty audio buffer")
	}

	scope := lifecycle.NewScope()
	fail := func(err error) (Track, error) {
		_ = scope.Close()
		return nil, err
	}

	path, release, err := lifecycle.SpoolFile(data, "parlo-*"+extensionFor(data))
	if err != nil {
		return fail(err)
	}
	_ = scope.Add("spool", release)

	streamer, format, err := openStream(path)
	if err != nil {
		return fail(err)
	}
	_ = scope.Add("decoder", streamer.Close)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := e.ensureSpeaker(); err != nil {
		return fail(err)
	}

	t := &beepTrack{
		source: streamer,
		format: format,
		scope:  scope,
		taps:   make(map[int]func([]float64)),
	}
	var out beep.Streamer = &tapStreamer{src: streamer, track: t}
	if format.SampleRate != e.rate {
		out = beep.Resample(4, format.SampleRate, e.rate, out)
	}
	t.ctrl = &beep.Ctrl{Streamer: out, Paused: true}
	return t, nil
}

// openStream decodes the spooled file, picking the decoder from the header.
func openStream(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open spool: %w", err)
	}

	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		_ = f.Close()
		return nil, beep.Format{}, fmt.Errorf("read audio header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, beep.Format{}, fmt.Errorf("rewind spool: %w", err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	if bytes.Equal(head, []byte("RIFF")) {
		streamer, format, err = wav.Decode(f)
	} else {
		streamer, format, err = mp3.Decode(f)
	}
	if err != nil {
		_ = f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode audio: %w", err)
	}
	return &fileStreamer{StreamSeekCloser: streamer, file: f}, format, nil
}

func extensionFor(data []byte) string {
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return ".wav"
	}
	return ".mp3"
}

// fileStreamer closes the spooled file along with the decoder.
type fileStreamer struct {
	beep.StreamSeekCloser
	file *os.File
}

func (s *fileStreamer) Close() error {
	err := s.StreamSeekCloser.Close()
	if cerr := s.file.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
		err = errors.Join(err, cerr)
	}
	return err
}

type beepTrack struct {
	source beep.StreamSeekCloser
	format beep.Format
	ctrl   *beep.Ctrl
	scope  *lifecycle.Scope

	queued atomic.Bool
	closed atomic.Bool

	mu    sync.Mutex
	onEnd func()

	tapsMu  sync.RWMutex
	nextTap int
	taps    map[int]func([]float64)
}

func (t *beepTrack) Duration() float64 {
	return t.format.SampleRate.D(t.source.Len()).Seconds()
}

func (t *beepTrack) Position() float64 {
	speaker.Lock()
	defer speaker.Unlock()
	return t.format.SampleRate.D(t.source.Position()).Seconds()
}

func (t *beepTrack) Seek(seconds float64) error {
	n := t.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if n >= t.source.Len() {
		n = t.source.Len() - 1
	}
	if n < 0 {
		n = 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return t.source.Seek(n)
}

func (t *beepTrack) Resume(onEnd func()) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.mu.Lock()
	t.onEnd = onEnd
	t.mu.Unlock()

	speaker.Lock()
	t.ctrl.Paused = false
	speaker.Unlock()

	if t.queued.CompareAndSwap(false, true) {
		// The callback runs under the speaker lock.
		speaker.Play(beep.Seq(t.ctrl, beep.Callback(func() { go t.finished() })))
	}
	return nil
}

func (t *beepTrack) finished() {
	t.queued.Store(false)
	if t.closed.Load() {
		return
	}
	t.mu.Lock()
	fn := t.onEnd
	t.onEnd = nil
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *beepTrack) Pause() float64 {
	speaker.Lock()
	t.ctrl.Paused = true
	pos := t.format.SampleRate.D(t.source.Position()).Seconds()
	speaker.Unlock()
	return pos
}

func (t *beepTrack) Tap(fn func([]float64)) lifecycle.Release {
	t.tapsMu.Lock()
	id := t.nextTap
	t.nextTap++
	t.taps[id] = fn
	t.tapsMu.Unlock()

	return lifecycle.Once(func() error {
		t.tapsMu.Lock()
		delete(t.taps, id)
		t.tapsMu.Unlock()
		return nil
	})
}

func (t *beepTrack) publish(samples [][2]float64) {
	t.tapsMu.RLock()
	defer t.tapsMu.RUnlock()
	if len(t.taps) == 0 {
		return
	}
	mono := make([]float64, len(samples))
	for i, s := range samples {
		mono[i] = (s[0] + s[1]) / 2
	}
	for _, fn := range t.taps {
		fn(mono)
	}
}

func (t *beepTrack) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	speaker.Lock()
	t.ctrl.Streamer = nil
	speaker.Unlock()
	return t.scope.Close()
}

// tapStreamer forwards decoded frames to the track's taps before they reach
// the resampler.
type tapStreamer struct {
	src   beep.Streamer
	track *beepTrack
}

func (s *tapStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := s.src.Stream(samples)
	if n > 0 {
		s.track.publish(samples[:n])
	}
	return n, ok
}

func (s *tapStreamer) Err() error {
	return s.src.Err()
}
