package conversation

import (
	"math"
	"sync"
)

// MessageWriter is held by the component that owns the message history
// during a turn. Only the stream reconciler replaces assistant content.
type MessageWriter interface {
	Append(role Role, content string)
	ReplaceLastAssistant(content string) bool
}

// PositionWriter is held by the playback controller, the sole writer of the
// playback position while audio is active.
type PositionWriter interface {
	SetPosition(seconds float64)
}

// State is the session-wide conversation state. It is created once per
// session and handed to each component, which receives only the narrow
// writer interface for the fields it owns.
type State struct {
	mu       sync.RWMutex
	messages []Message
	profile  Profile
	position float64
	onChange []func()
}

func NewState(profile Profile) *State {
	return &State{profile: profile.WithDefaults()}
}

// OnChange registers fn to run after every mutation. fn runs outside the lock.
func (s *State) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Messages returns a copy of the history.
func (s *State) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *State) Append(role Role, content string) {
	s.mu.Lock()
	s.messages = append(s.messages, Message{Role: role, Content: content})
	s.mu.Unlock()
	s.notify()
}

// ReplaceLastAssistant overwrites the content of the most recent assistant
// message. It reports false when the history holds no assistant message.
func (s *State) ReplaceLastAssistant(content string) bool {
	s.mu.Lock()
	replaced := false
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAssistant {
			s.messages[i].Content = content
			replaced = true
			break
		}
	}
	s.mu.Unlock()
	if replaced {
		s.notify()
	}
	return replaced
}

func (s *State) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// ChangeTopic switches the topic and clears the history.
func (s *State) ChangeTopic(topic string) {
	s.mu.Lock()
	s.profile.Topic = topic
	s.messages = nil
	s.position = 0
	s.mu.Unlock()
	s.notify()
}

func (s *State) SetPrefs(native, target string) {
	s.mu.Lock()
	if native != "" {
		s.profile.NativeLanguage = native
	}
	if target != "" {
		s.profile.TargetLanguage = target
	}
	s.mu.Unlock()
	s.notify()
}

func (s *State) Position() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

func (s *State) SetPosition(seconds float64) {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	s.mu.Lock()
	s.position = seconds
	s.mu.Unlock()
	s.notify()
}

func (s *State) notify() {
	s.mu.RLock()
	fns := append([]func(){}, s.onChange...)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
