package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Hub fans encoded events out to subscribers. Slow subscribers miss events
// rather than block the broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	logger  *slog.Logger
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{}), logger: slog.Default()}
}

func (h *Hub) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	_, ok := h.clients[ch]
	delete(h.clients, ch)
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastMessageUpdated(turnID string, index int, role, content string) {
	h.broadcastEvent(MessageUpdatedEvent{
		Event:   newEvent(TypeMessageUpdated, time.Now().UTC()),
		TurnID:  turnID,
		Index:   index,
		Role:    role,
		Content: content,
	})
}

func (h *Hub) BroadcastTurnState(turnID, state string) {
	h.broadcastEvent(TurnStateEvent{
		Event:  newEvent(TypeTurnState, time.Now().UTC()),
		TurnID: turnID,
		State:  state,
	})
}

func (h *Hub) BroadcastPlaybackState(active bool, position, duration float64, readiness string) {
	h.broadcastEvent(PlaybackStateEvent{
		Event:     newEvent(TypePlaybackState, time.Now().UTC()),
		Active:    active,
		Position:  position,
		Duration:  duration,
		Readiness: readiness,
	})
}

func (h *Hub) BroadcastRecordingState(recording, transcribing bool) {
	h.broadcastEvent(RecordingStateEvent{
		Event:        newEvent(TypeRecordingState, time.Now().UTC()),
		Recording:    recording,
		Transcribing: transcribing,
	})
}

func (h *Hub) BroadcastTurnFailed(turnID, stage string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	h.broadcastEvent(TurnFailedEvent{
		Event:  newEvent(TypeTurnFailed, time.Now().UTC()),
		TurnID: turnID,
		Stage:  stage,
		Error:  msg,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed", "error", err)
		return
	}
	h.Broadcast(payload)
}

// DecodeType reads the type field of an encoded event.
func DecodeType(msg []byte) string {
	var e Event
	if err := json.Unmarshal(msg, &e); err != nil {
		return ""
	}
	return e.Type
}
