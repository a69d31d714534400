package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io/v1"
	elevenLabsVoiceID      = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsModelID      = "eleven_multilingual_v2"
	elevenLabsOutputFormat = "mp3_44100_128"
)

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabs struct {
	apiKey  string
	baseURL string
	voiceID string
	modelID string
	client  *http.Client
	logger  *slog.Logger
}

func newElevenLabs(cfg Config) (*elevenLabs, error) {
	if cfg.ElevenLabsKey == "" {
		return nil, fmt.Errorf("elevenlabs: %w", ErrMissingKey)
	}
	e := &elevenLabs{
		apiKey:  cfg.ElevenLabsKey,
		baseURL: strings.TrimRight(cfg.ElevenLabsBaseURL, "/"),
		voiceID: cfg.TTSVoice,
		modelID: cfg.TTSModel,
		client:  cfg.httpClient(),
		logger:  cfg.logger(),
	}
	if e.baseURL == "" {
		e.baseURL = elevenLabsBaseURL
	}
	// OpenAI voice and model names mean nothing to ElevenLabs.
	if e.voiceID == "" || e.voiceID == DefaultTTSVoice {
		e.voiceID = elevenLabsVoiceID
	}
	if e.modelID == "" || e.modelID == DefaultTTSModel {
		e.modelID = elevenLabsModelID
	}
	return e, nil
}

func (e *elevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:          text,
		ModelID:       e.modelID,
		VoiceSettings: elevenLabsVoiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		e.baseURL, url.PathEscape(e.voiceID), elevenLabsOutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build elevenlabs request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError("elevenlabs speech", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		e.logger.Warn("elevenlabs returned error", "status", resp.StatusCode)
		return nil, fmt.Errorf("elevenlabs speech: %w", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("read elevenlabs speech", err)
	}
	return data, nil
}
