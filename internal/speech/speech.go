// Package speech holds the transcription and synthesis collaborators.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

const (
	DefaultTranscribeModel = "whisper-1"
	DefaultTTSModel        = "tts-1"
	DefaultTTSVoice        = "alloy"
)

type Config struct {
	Transcriber        string
	TranscribeModel    string
	TranscribeLanguage string
	Synthesizer        string
	TTSModel           string
	TTSVoice           string

	OpenAIKey         string
	OpenAIBaseURL     string
	DeepgramKey       string
	DeepgramHost      string
	ElevenLabsKey     string
	ElevenLabsBaseURL string
	GoogleCredentials string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// NewTranscriber builds the configured transcription backend.
func NewTranscriber(ctx context.Context, cfg Config) (Transcriber, error) {
	switch cfg.Transcriber {
	case "", "openai":
		return newWhisper(cfg)
	case "deepgram":
		return newDeepgram(cfg)
	case "google":
		return newGoogle(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown transcriber %q: supported transcribers are openai, deepgram, google", cfg.Transcriber)
	}
}

// NewSynthesizer builds the configured speech synthesis backend.
func NewSynthesizer(cfg Config) (Synthesizer, error) {
	switch cfg.Synthesizer {
	case "", "openai":
		return newOpenAITTS(cfg)
	case "elevenlabs":
		return newElevenLabs(cfg)
	default:
		return nil, fmt.Errorf("unknown synthesizer %q: supported synthesizers are openai, elevenlabs", cfg.Synthesizer)
	}
}
