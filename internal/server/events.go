package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

const (
	TypeMessageUpdated = "message_updated"
	TypeTurnState      = "turn_state"
	TypePlaybackState  = "playback_state"
	TypeRecordingState = "recording_state"
	TypeTurnFailed     = "turn_failed"
	TypeConnection     = "connection"
)

type MessageUpdatedEvent struct {
	Event
	TurnID  string `json:"turn_id,omitempty"`
	Index   int    `json:"index"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TurnStateEvent struct {
	Event
	TurnID string `json:"turn_id,omitempty"`
	State  string `json:"state"`
}

type PlaybackStateEvent struct {
	Event
	Active    bool    `json:"active"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	Readiness string  `json:"readiness"`
}

type RecordingStateEvent struct {
	Event
	Recording    bool `json:"recording"`
	Transcribing bool `json:"transcribing"`
}

type TurnFailedEvent struct {
	Event
	TurnID string `json:"turn_id,omitempty"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
