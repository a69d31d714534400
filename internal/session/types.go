package session

import (
	"context"
	"time"

	"github.com/sjawhar/parlo/internal/audio"
	"github.com/sjawhar/parlo/internal/conversation"
	"github.com/sjawhar/parlo/internal/playback"
	"github.com/sjawhar/parlo/internal/visual"
)

// TurnState is the per-turn state machine:
// Idle -> Sending -> Streaming -> Synthesizing -> AutoPlaying -> Idle.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnSending
	TurnStreaming
	TurnSynthesizing
	TurnAutoPlaying
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnSending:
		return "sending"
	case TurnStreaming:
		return "streaming"
	case TurnSynthesizing:
		return "synthesizing"
	case TurnAutoPlaying:
		return "auto_playing"
	}
	return "unknown"
}

// InFlight reports whether the turn still waits on a collaborator.
func (s TurnState) InFlight() bool {
	return s == TurnSending || s == TurnStreaming || s == TurnSynthesizing
}

type Player interface {
	visual.PlaybackSource
	Load(data []byte) uint64
	Play(at float64) error
	Pause() float64
	Seek(at float64) error
	Reset()
	State() playback.State
	Subscribe() chan playback.Event
	Unsubscribe(ch chan playback.Event)
}

type Recorder interface {
	Start(ctx context.Context) error
	StopAndTranscribe(ctx context.Context) audio.Result
	Cancel()
	State() audio.RecordingState
	Live() *audio.Live
}

type Visualizer interface {
	BindPlayback(src visual.PlaybackSource)
	BindLive(src visual.Source)
	Unbind()
}

type EventBroadcaster interface {
	BroadcastMessageUpdated(turnID string, index int, role, content string)
	BroadcastTurnState(turnID, state string)
	BroadcastPlaybackState(active bool, position, duration float64, readiness string)
	BroadcastRecordingState(recording, transcribing bool)
	BroadcastTurnFailed(turnID, stage string, err error)
}

type TranscriptWriter interface {
	Append(msg conversation.Message, at time.Time) error
}

type ProfileStore interface {
	SaveProfile(p conversation.Profile) error
}

// Snapshot is a point-in-time view of the session for status reporting.
type Snapshot struct {
	Turn         string         `json:"turn"`
	TurnID       string         `json:"turn_id,omitempty"`
	Recording    bool           `json:"recording"`
	Transcribing bool           `json:"transcribing"`
	Messages     int            `json:"messages"`
	Topic        string         `json:"topic"`
	Playback     playback.State `json:"playback"`
	Readiness    string         `json:"readiness"`
}
