package conversation

import (
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

const (
	DefaultNativeLanguage = "Spanish"
	DefaultTargetLanguage = "English"
)

// DefaultTopics is the topic menu offered by the chat window. The first entry
// is used when no topic has been chosen yet.
var DefaultTopics = []string{
	"Daily routine",
	"Travel",
	"Food and cooking",
	"Work and careers",
	"Hobbies",
	"Health",
	"Shopping",
	"Grammar questions",
}

var ErrInvalidProfile = errors.New("invalid profile")

// Profile is the learner configuration sent with every chat request.
type Profile struct {
	NativeLanguage string `json:"nativeLanguage" yaml:"native_language"`
	TargetLanguage string `json:"targetLanguage" yaml:"target_language"`
	Topic          string `json:"topic" yaml:"topic"`
}

func DefaultProfile() Profile {
	return Profile{
		NativeLanguage: DefaultNativeLanguage,
		TargetLanguage: DefaultTargetLanguage,
		Topic:          DefaultTopics[0],
	}
}

// Validate reports which fields are missing. It does not normalise the profile.
func (p Profile) Validate() error {
	var missing []string
	if strings.TrimSpace(p.NativeLanguage) == "" {
		missing = append(missing, "nativeLanguage")
	}
	if strings.TrimSpace(p.TargetLanguage) == "" {
		missing = append(missing, "targetLanguage")
	}
	if strings.TrimSpace(p.Topic) == "" {
		missing = append(missing, "topic")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidProfile, strings.Join(missing, ", "))
	}
	return nil
}

// WithDefaults fills empty fields from DefaultProfile.
func (p Profile) WithDefaults() Profile {
	def := DefaultProfile()
	if strings.TrimSpace(p.NativeLanguage) == "" {
		p.NativeLanguage = def.NativeLanguage
	}
	if strings.TrimSpace(p.TargetLanguage) == "" {
		p.TargetLanguage = def.TargetLanguage
	}
	if strings.TrimSpace(p.Topic) == "" {
		p.Topic = def.Topic
	}
	return p
}
