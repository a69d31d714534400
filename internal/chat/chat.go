// Package chat is the chat collaborator: it validates the learner profile,
// prepends the tutor prompt and opens a reply stream from the configured
// model.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sjawhar/parlo/internal/conversation"
	"github.com/sjawhar/parlo/internal/llm"
)

var (
	ErrInvalidProfile = conversation.ErrInvalidProfile
	ErrEmptyHistory   = errors.New("conversation has no messages")
)

// Prefs is the preference half of the profile as it travels on the wire.
type Prefs struct {
	NativeLanguage string `json:"nativeLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

// Request is the body of a conversation call.
type Request struct {
	Messages []conversation.Message `json:"messages"`
	Topic    string                 `json:"topic"`
	Prefs    Prefs                  `json:"userPrefs"`
}

func NewRequest(messages []conversation.Message, p conversation.Profile) Request {
	return Request{
		Messages: messages,
		Topic:    p.Topic,
		Prefs:    Prefs{NativeLanguage: p.NativeLanguage, TargetLanguage: p.TargetLanguage},
	}
}

func (r Request) Profile() conversation.Profile {
	return conversation.Profile{
		NativeLanguage: r.Prefs.NativeLanguage,
		TargetLanguage: r.Prefs.TargetLanguage,
		Topic:          r.Topic,
	}
}

// Validate checks the profile and that there is something to reply to.
func (r Request) Validate() error {
	if err := r.Profile().Validate(); err != nil {
		return err
	}
	if len(r.Messages) == 0 {
		return ErrEmptyHistory
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return nil
}

// Opener opens a reply stream for a request. Both the local Service and the
// remote client satisfy it.
type Opener interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

type ClientFactory func(provider, model string) (llm.Client, error)

type Service struct {
	client llm.Client
	logger *slog.Logger
}

func New(client llm.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, logger: logger}
}

// NewFromModel builds a Service for a "provider/model" string.
func NewFromModel(model string, factory ClientFactory, logger *slog.Logger) (*Service, error) {
	provider, name, err := llm.ParseModel(model)
	if err != nil {
		return nil, err
	}
	client, err := factory(provider, name)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return New(client, logger), nil
}

// Messages builds the provider message list: the tutor prompt followed by
// the history.
func Messages(req Request) []llm.Message {
	prompt := SystemPrompt(req.Profile(), LatestUserPrompt(req.Messages))
	out := make([]llm.Message, 0, len(req.Messages)+1)
	out = append(out, llm.Message{Role: string(conversation.RoleSystem), Content: prompt})
	for _, m := range req.Messages {
		if m.Role == conversation.RoleSystem {
			continue
		}
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (s *Service) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate chat request: %w", err)
	}
	body, err := s.client.Stream(ctx, Messages(req))
	if err != nil {
		s.logger.Warn("chat stream failed", "topic", req.Topic, "error", err)
		return nil, fmt.Errorf("open chat stream: %w", err)
	}
	return body, nil
}

// Reply is the non-streaming form of Open.
func (s *Service) Reply(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("validate chat request: %w", err)
	}
	text, err := s.client.Complete(ctx, Messages(req))
	if err != nil {
		return "", fmt.Errorf("chat reply: %w", err)
	}
	return text, nil
}
