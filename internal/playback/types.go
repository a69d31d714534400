package playback

type Readiness int

const (
	Unloaded Readiness = iota
	Loading
	Ready
)

func (r Readiness) String() string {
	switch r {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return "unknown"
}

type State struct {
	Active     bool      `json:"active"`
	Pending    bool      `json:"pending"`
	Position   float64   `json:"position"`
	Duration   float64   `json:"duration"`
	Readiness  Readiness `json:"-"`
	Generation uint64    `json:"generation"`
}

type EventType string

const (
	EventLoading  EventType = "loading"
	EventReady    EventType = "ready"
	EventPlaying  EventType = "playing"
	EventPaused   EventType = "paused"
	EventEnded    EventType = "ended"
	EventUnloaded EventType = "unloaded"
	EventFailed   EventType = "failed"
)

type Event struct {
	Type       EventType
	Generation uint64
	Position   float64
	Duration   float64
	Err        error
}
