package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

func newOpenAIClient(cfg Config) (*openai.Client, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingKey)
	}
	config := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		config.BaseURL = cfg.OpenAIBaseURL
	}
	config.HTTPClient = cfg.httpClient()
	return openai.NewClientWithConfig(config), nil
}

// openaiError maps SDK errors onto StatusError so callers can tell an
// upstream rejection from a dropped connection.
func openaiError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%s: %w", op, &StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message})
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%s: %w", op, &StatusError{Code: reqErr.HTTPStatusCode, Body: reqErr.Error()})
	}
	return transportError(op, err)
}

type whisper struct {
	client   *openai.Client
	model    string
	language string
	logger   *slog.Logger
}

func newWhisper(cfg Config) (*whisper, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.TranscribeModel
	if model == "" {
		model = DefaultTranscribeModel
	}
	return &whisper{client: client, model: model, language: cfg.TranscribeLanguage, logger: cfg.logger()}, nil
}

func (w *whisper) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoAudio
	}
	if filename == "" {
		filename = "audio.wav"
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatText,
		Language: w.language,
	})
	if err != nil {
		return "", openaiError("openai transcription", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

type openaiTTS struct {
	client *openai.Client
	model  string
	voice  string
}

func newOpenAITTS(cfg Config) (*openaiTTS, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.TTSModel
	if model == "" {
		model = DefaultTTSModel
	}
	voice := cfg.TTSVoice
	if voice == "" {
		voice = DefaultTTSVoice
	}
	return &openaiTTS{client: client, model: model, voice: voice}, nil
}

func (s *openaiTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, openaiError("openai speech", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, transportError("read openai speech", err)
	}
	return data, nil
}
