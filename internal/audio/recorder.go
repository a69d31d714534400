package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const DefaultEnergyThreshold = 0.01

// Transcriber turns an encoded audio upload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type Outcome int

const (
	OutcomeTranscribed Outcome = iota
	OutcomeSilence
	OutcomeFailed
	OutcomePermissionDenied
	OutcomeDeviceUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTranscribed:
		return "transcribed"
	case OutcomeSilence:
		return "silence"
	case OutcomeFailed:
		return "failed"
	case OutcomePermissionDenied:
		return "permission_denied"
	case OutcomeDeviceUnavailable:
		return "device_unavailable"
	}
	return "unknown"
}

// Result is delivered for every recording attempt. Text is empty for every
// outcome except OutcomeTranscribed; callers treat empty text as a no-op.
type Result struct {
	Text    string
	Outcome Outcome
	Err     error
}

type RecordingState struct {
	Recording    bool `json:"recording"`
	Transcribing bool `json:"transcribing"`
}

type Option func(*Recorder)

func WithEnergyThreshold(threshold float64) Option {
	return func(r *Recorder) {
		if threshold >= 0 {
			r.threshold = threshold
		}
	}
}

func WithSampleRate(rate int) Option {
	return func(r *Recorder) {
		if rate > 0 {
			r.sampleRate = rate
		}
	}
}

// WithResultHandler registers fn to receive every Result, including the
// empty result reported when the microphone cannot be acquired.
func WithResultHandler(fn func(Result)) Option {
	return func(r *Recorder) { r.onResult = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

type Recorder struct {
	open        Opener
	transcriber Transcriber
	threshold   float64
	sampleRate  int
	onResult    func(Result)
	logger      *slog.Logger
	live        *Live

	mu           sync.Mutex
	recording    bool
	transcribing bool
	capture      *capture
}

type capture struct {
	src  Source
	rate int
	stop chan struct{}
	done chan struct{}

	mu  sync.Mutex
	pcm []byte
	err error
}

func NewRecorder(open Opener, transcriber Transcriber, opts ...Option) *Recorder {
	r := &Recorder{
		open:        open,
		transcriber: transcriber,
		threshold:   DefaultEnergyThreshold,
		sampleRate:  defaultSampleRate,
		logger:      slog.Default(),
		live:        newLive(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Live exposes the capture fan-out for visualizer binding.
func (r *Recorder) Live() *Live {
	return r.live
}

func (r *Recorder) State() RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RecordingState{Recording: r.recording, Transcribing: r.transcribing}
}

// Start acquires the microphone and begins capture. On failure the recorder
// stays idle, the result handler receives an empty result, and the error
// wraps ErrPermissionDenied or ErrDeviceUnavailable.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.recording || r.transcribing {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.recording = true
	r.mu.Unlock()

	src, err := r.acquire(ctx)
	if err != nil {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()

		outcome := OutcomeDeviceUnavailable
		if errors.Is(err, ErrPermissionDenied) {
			outcome = OutcomePermissionDenied
		}
		r.logger.Warn("microphone acquire failed", "outcome", outcome.String(), "error", err)
		r.deliver(Result{Outcome: outcome, Err: err})
		return err
	}

	rate := r.sampleRate
	if rs, ok := src.(interface{ SampleRate() int }); ok && rs.SampleRate() > 0 {
		rate = rs.SampleRate()
	}

	c := &capture{
		src:  src,
		rate: rate,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.capture = c
	r.mu.Unlock()

	go r.run(c)
	return nil
}

func (r *Recorder) acquire(ctx context.Context) (Source, error) {
	if r.open == nil {
		return nil, ErrDeviceUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	src, err := r.open(r.sampleRate)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return src, nil
}

func (r *Recorder) run(c *capture) {
	defer close(c.done)
	defer func() {
		if err := c.src.Close(); err != nil {
			r.logger.Warn("microphone release failed", "error", err)
		}
	}()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		buf, err := c.src.Read()
		if err != nil {
			if isOverflow(err) {
				r.logger.Debug("mic input overflow, continuing")
				continue
			}
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		c.pcm = appendPCM(c.pcm, buf)
		c.mu.Unlock()
		r.live.publish(int16ToFloat(buf))
	}
}

// StopAndTranscribe ends capture, applies the energy gate and transcribes the
// segment. It never returns an error: failures become an empty result with
// the cause in Result.Err.
func (r *Recorder) StopAndTranscribe(ctx context.Context) Result {
	r.mu.Lock()
	c := r.capture
	if !r.recording || c == nil {
		r.mu.Unlock()
		return Result{Outcome: OutcomeFailed, Err: ErrNotRecording}
	}
	r.capture = nil
	r.recording = false
	r.transcribing = true
	r.mu.Unlock()

	close(c.stop)
	<-c.done

	result := r.transcribe(ctx, c)

	r.mu.Lock()
	r.transcribing = false
	r.mu.Unlock()

	r.deliver(result)
	return result
}

// Cancel ends capture and discards the segment.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	c := r.capture
	r.capture = nil
	r.recording = false
	r.mu.Unlock()
	if c == nil {
		return
	}
	close(c.stop)
	<-c.done
}

func (r *Recorder) transcribe(ctx context.Context, c *capture) Result {
	c.mu.Lock()
	seg := Segment{PCM: c.pcm, SampleRate: c.rate}
	captureErr := c.err
	c.mu.Unlock()

	if captureErr != nil {
		r.logger.Warn("capture ended early", "error", captureErr)
	}

	rms := RMS(seg.Samples())
	if rms <= r.threshold {
		r.logger.Debug("silence detected, skipping transcription", "rms", rms, "threshold", r.threshold)
		return Result{Outcome: OutcomeSilence}
	}

	if r.transcriber == nil {
		return Result{Outcome: OutcomeFailed, Err: errors.New("no transcriber configured")}
	}

	wav, err := seg.WAV()
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("encode segment: %w", err)}
	}

	text, err := r.transcriber.Transcribe(ctx, wav, "recording.wav")
	if err != nil {
		r.logger.Warn("transcription failed", "duration", seg.Duration(), "error", err)
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("transcribe segment: %w", err)}
	}
	return Result{Text: strings.TrimSpace(text), Outcome: OutcomeTranscribed}
}

func (r *Recorder) deliver(res Result) {
	if r.onResult != nil {
		r.onResult(res)
	}
}
