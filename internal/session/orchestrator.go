// Package session sequences a conversation turn from the learner's message
// through the streamed reply to synthesized, auto-played audio, and keeps
// recording and playback mutually exclusive.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sjawhar/parlo/internal/audio"
	"github.com/sjawhar/parlo/internal/chat"
	"github.com/sjawhar/parlo/internal/conversation"
	"github.com/sjawhar/parlo/internal/playback"
	"github.com/sjawhar/parlo/internal/speech"
	"github.com/sjawhar/parlo/internal/stream"
)

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTranscript(w TranscriptWriter) Option {
	return func(o *Orchestrator) { o.transcript = w }
}

func WithProfileStore(s ProfileStore) Option {
	return func(o *Orchestrator) { o.profiles = s }
}

// WithRecordingLimit stops a recording that runs longer than d and hands the
// result to onResult.
func WithRecordingLimit(d time.Duration, onResult func(audio.Result)) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.limit = NewDetector(d)
			o.onAutoStop = onResult
		}
	}
}

// Orchestrator owns the turn state. At most one turn is in flight.
type Orchestrator struct {
	state      *conversation.State
	chat       chat.Opener
	synth      speech.Synthesizer
	player     Player
	recorder   Recorder
	vis        Visualizer
	hub        EventBroadcaster
	transcript TranscriptWriter
	profiles   ProfileStore
	limit      *Detector
	onAutoStop func(audio.Result)
	logger     *slog.Logger

	mu         sync.Mutex
	turn       TurnState
	turnID     string
	cancelTurn context.CancelFunc
	recording  bool
	closed     bool

	events chan playback.Event
	done   chan struct{}
}

// NewOrchestrator wires the collaborators together. vis and hub may be nil.
func NewOrchestrator(
	state *conversation.State,
	chatOpener chat.Opener,
	synth speech.Synthesizer,
	player Player,
	recorder Recorder,
	vis Visualizer,
	hub EventBroadcaster,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		state:    state,
		chat:     chatOpener,
		synth:    synth,
		player:   player,
		recorder: recorder,
		vis:      vis,
		hub:      hub,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.limit != nil {
		o.limit.OnTimeout(o.recordingLimitReached)
	}

	o.events = player.Subscribe()
	go o.watchPlayback()
	return o
}

// Send runs one full turn for text. It returns once the reply audio has been
// handed to the player, or with the error that ended the turn early. Any
// partial reply stays in the history.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case o.turn.InFlight():
		o.mu.Unlock()
		return ErrTurnInFlight
	case o.recording:
		o.mu.Unlock()
		return ErrRecordingActive
	}
	turnCtx, cancel := context.WithCancel(ctx)
	turnID := uuid.NewString()
	o.turnID = turnID
	o.cancelTurn = cancel
	o.setTurnLocked(TurnSending)
	o.mu.Unlock()
	defer cancel()

	o.state.Append(conversation.RoleUser, text)
	o.messageUpdated(turnID)
	o.record(conversation.Message{Role: conversation.RoleUser, Content: text})

	req := chat.NewRequest(o.state.Messages(), o.state.Profile())
	body, err := o.chat.Open(turnCtx, req)
	if err != nil {
		return o.fail(turnID, "sending", fmt.Errorf("open chat stream: %w", err))
	}

	reconciler := stream.NewReconciler(o.state)
	reply, err := reconciler.Consume(turnCtx, body, func(u stream.Update) {
		if u.First {
			o.advance(turnID, TurnStreaming)
		}
		o.messageUpdated(turnID)
	})
	if reply != "" {
		o.record(conversation.Message{Role: conversation.RoleAssistant, Content: reply})
	}
	if err != nil {
		return o.fail(turnID, "streaming", err)
	}
	if strings.TrimSpace(reply) == "" {
		return o.fail(turnID, "streaming", ErrEmptyReply)
	}

	if o.Recording() {
		o.logger.Info("skipping synthesis while recording", "turn", turnID)
		o.finish(turnID)
		return nil
	}
	if !o.advance(turnID, TurnSynthesizing) {
		o.logger.Info("skipping synthesis, turn superseded", "turn", turnID)
		return nil
	}
	data, err := o.synth.Synthesize(turnCtx, reply)
	if err != nil {
		return o.fail(turnID, "synthesizing", fmt.Errorf("synthesize reply: %w", err))
	}

	o.mu.Lock()
	if o.turnID != turnID || o.turn != TurnSynthesizing || o.recording || o.closed {
		if o.turnID == turnID {
			o.setTurnLocked(TurnIdle)
		}
		o.mu.Unlock()
		o.logger.Info("dropping synthesized audio, turn superseded", "turn", turnID)
		return nil
	}
	o.player.Load(data)
	if err := o.player.Play(0); err != nil {
		o.mu.Unlock()
		return o.fail(turnID, "playback", fmt.Errorf("start playback: %w", err))
	}
	o.setTurnLocked(TurnAutoPlaying)
	o.mu.Unlock()
	return nil
}

// StartRecording releases playback and the visualizer binding before the
// microphone is opened, then binds the visualizer to the live capture.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.recording {
		return audio.ErrAlreadyRecording
	}

	o.recording = true
	if o.turn == TurnAutoPlaying {
		o.setTurnLocked(TurnIdle)
	}
	o.player.Reset()
	if o.vis != nil {
		o.vis.Unbind()
	}

	if err := o.recorder.Start(ctx); err != nil {
		o.recording = false
		o.broadcastRecording()
		return fmt.Errorf("start recording: %w", err)
	}

	if o.vis != nil {
		o.vis.BindLive(o.recorder.Live())
	}
	if o.limit != nil {
		o.limit.Arm()
	}
	o.broadcastRecording()
	return nil
}

// StopRecording ends capture and returns the transcription result. Silence
// and transcription failures come back as empty results.
func (o *Orchestrator) StopRecording(ctx context.Context) audio.Result {
	o.mu.Lock()
	if !o.recording {
		o.mu.Unlock()
		return audio.Result{Outcome: audio.OutcomeFailed, Err: audio.ErrNotRecording}
	}
	if o.limit != nil {
		o.limit.Disarm()
	}
	if o.vis != nil {
		o.vis.Unbind()
	}
	o.mu.Unlock()

	if o.hub != nil {
		o.hub.BroadcastRecordingState(false, true)
	}
	res := o.recorder.StopAndTranscribe(ctx)

	o.mu.Lock()
	o.recording = false
	o.broadcastRecording()
	o.mu.Unlock()

	o.logger.Info("recording finished", "outcome", res.Outcome.String(), "chars", len(res.Text))
	return res
}

func (o *Orchestrator) recordingLimitReached() {
	o.logger.Info("recording limit reached, stopping")
	res := o.StopRecording(context.Background())
	if o.onAutoStop != nil {
		o.onAutoStop(res)
	}
}

// TogglePlayback pauses active audio or resumes it from the stored position.
func (o *Orchestrator) TogglePlayback() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.recording {
		return ErrRecordingActive
	}

	st := o.player.State()
	if st.Readiness == playback.Unloaded {
		return playback.ErrNotLoaded
	}
	if st.Active || st.Pending {
		o.player.Pause()
		return nil
	}
	if err := o.player.Play(o.state.Position()); err != nil {
		return fmt.Errorf("resume playback: %w", err)
	}
	return nil
}

func (o *Orchestrator) Seek(at float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.recording {
		return ErrRecordingActive
	}
	if err := o.player.Seek(at); err != nil {
		return fmt.Errorf("seek playback: %w", err)
	}
	return nil
}

// ChangeTopic clears the history and playback. It is refused while a turn
// is in flight.
func (o *Orchestrator) ChangeTopic(topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return fmt.Errorf("%w: missing topic", conversation.ErrInvalidProfile)
	}

	o.mu.Lock()
	if o.turn.InFlight() {
		o.mu.Unlock()
		return ErrTurnInFlight
	}
	o.player.Reset()
	o.setTurnLocked(TurnIdle)
	o.turnID = ""
	o.state.ChangeTopic(topic)
	o.mu.Unlock()

	return o.saveProfile()
}

func (o *Orchestrator) SetPrefs(native, target string) error {
	if strings.TrimSpace(native) == "" || strings.TrimSpace(target) == "" {
		return fmt.Errorf("%w: languages are required", conversation.ErrInvalidProfile)
	}
	o.state.SetPrefs(strings.TrimSpace(native), strings.TrimSpace(target))
	return o.saveProfile()
}

func (o *Orchestrator) saveProfile() error {
	if o.profiles == nil {
		return nil
	}
	if err := o.profiles.SaveProfile(o.state.Profile()); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (o *Orchestrator) Turn() TurnState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.turn
}

func (o *Orchestrator) Recording() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.recording
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	turn, turnID := o.turn, o.turnID
	o.mu.Unlock()

	rs := o.recorder.State()
	ps := o.player.State()
	return Snapshot{
		Turn:         turn.String(),
		TurnID:       turnID,
		Recording:    rs.Recording,
		Transcribing: rs.Transcribing,
		Messages:     o.state.Len(),
		Topic:        o.state.Profile().Topic,
		Playback:     ps,
		Readiness:    ps.Readiness.String(),
	}
}

// Close cancels the in-flight turn, discards any recording and releases
// playback and visualizer resources.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if o.cancelTurn != nil {
		o.cancelTurn()
	}
	recording := o.recording
	o.recording = false
	o.mu.Unlock()

	if o.limit != nil {
		o.limit.Disarm()
	}
	if recording {
		o.recorder.Cancel()
	}
	o.player.Reset()
	o.player.Unsubscribe(o.events)
	<-o.done
	if o.vis != nil {
		o.vis.Unbind()
	}
	return nil
}

// watchPlayback turns player events into visualizer bindings and turn
// transitions.
func (o *Orchestrator) watchPlayback() {
	defer close(o.done)
	for ev := range o.events {
		o.handlePlayback(ev)
	}
}

func (o *Orchestrator) handlePlayback(ev playback.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.player.State()
	current := ev.Generation == st.Generation

	switch ev.Type {
	case playback.EventReady:
		if current && !o.recording && !o.closed && o.vis != nil {
			o.vis.BindPlayback(o.player)
		}
	case playback.EventPaused, playback.EventEnded:
		if current && o.turn == TurnAutoPlaying {
			o.setTurnLocked(TurnIdle)
		}
	case playback.EventFailed:
		if current {
			if !o.recording && o.vis != nil {
				o.vis.Unbind()
			}
			if o.turn == TurnAutoPlaying {
				o.failLocked(o.turnID, "playback", ev.Err)
			}
		}
	case playback.EventUnloaded:
		if !o.recording && o.vis != nil {
			o.vis.Unbind()
		}
	}

	if o.hub != nil {
		o.hub.BroadcastPlaybackState(st.Active, st.Position, st.Duration, st.Readiness.String())
	}
}

// advance moves turnID to next unless it has been superseded.
func (o *Orchestrator) advance(turnID string, next TurnState) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turnID != turnID || !o.turn.InFlight() {
		return false
	}
	o.setTurnLocked(next)
	return true
}

func (o *Orchestrator) finish(turnID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turnID == turnID {
		o.setTurnLocked(TurnIdle)
	}
}

func (o *Orchestrator) fail(turnID, stage string, err error) error {
	o.mu.Lock()
	o.failLocked(turnID, stage, err)
	o.mu.Unlock()
	return err
}

func (o *Orchestrator) failLocked(turnID, stage string, err error) {
	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelInfo
	}
	o.logger.Log(context.Background(), level, "turn failed", "turn", turnID, "stage", stage, "error", err)
	if o.hub != nil {
		o.hub.BroadcastTurnFailed(turnID, stage, err)
	}
	if o.turnID == turnID {
		o.setTurnLocked(TurnIdle)
	}
}

func (o *Orchestrator) setTurnLocked(next TurnState) {
	if o.turn == next {
		return
	}
	o.logger.Debug("turn state", "turn", o.turnID, "from", o.turn.String(), "to", next.String())
	o.turn = next
	if next == TurnIdle && o.cancelTurn != nil {
		o.cancelTurn = nil
	}
	if o.hub != nil {
		o.hub.BroadcastTurnState(o.turnID, next.String())
	}
}

func (o *Orchestrator) messageUpdated(turnID string) {
	if o.hub == nil {
		return
	}
	msgs := o.state.Messages()
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	o.hub.BroadcastMessageUpdated(turnID, len(msgs)-1, string(last.Role), last.Content)
}

func (o *Orchestrator) record(msg conversation.Message) {
	if o.transcript == nil {
		return
	}
	if err := o.transcript.Append(msg, time.Now()); err != nil {
		o.logger.Warn("transcript append failed", "error", err)
	}
}

func (o *Orchestrator) broadcastRecording() {
	if o.hub == nil {
		return
	}
	o.hub.BroadcastRecordingState(o.recording, false)
}
