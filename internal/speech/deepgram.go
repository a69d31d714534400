package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

const defaultDeepgramModel = "nova-2"

type deepgram struct {
	client   *api.Client
	model    string
	language string
	logger   *slog.Logger
}

func newDeepgram(cfg Config) (*deepgram, error) {
	if cfg.DeepgramKey == "" {
		return nil, fmt.Errorf("deepgram: %w", ErrMissingKey)
	}
	model := cfg.TranscribeModel
	if model == "" || model == DefaultTranscribeModel {
		model = defaultDeepgramModel
	}
	c := client.NewREST(cfg.DeepgramKey, &interfaces.ClientOptions{Host: cfg.DeepgramHost})
	return &deepgram{
		client:   api.New(c),
		model:    model,
		language: cfg.TranscribeLanguage,
		logger:   cfg.logger(),
	}, nil
}

func (d *deepgram) Transcribe(ctx context.Context, audio []byte, _ string) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoAudio
	}

	resp, err := d.client.FromStream(ctx, bytes.NewReader(audio), &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		Language:    d.language,
		Punctuate:   true,
		SmartFormat: true,
	})
	if err != nil {
		return "", transportError("deepgram transcription", err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("encode deepgram response: %w", err)
	}
	text, err := deepgramTranscript(raw)
	if err != nil {
		return "", err
	}
	d.logger.Debug("deepgram transcription complete", "chars", len(text))
	return text, nil
}

type deepgramWord struct {
	Word           string `json:"word"`
	PunctuatedWord string `json:"punctuated_word"`
}

type deepgramResult struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string         `json:"transcript"`
				Words      []deepgramWord `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// deepgramTranscript extracts the first alternative of the first channel,
// rebuilding it from words when the transcript field is empty.
func deepgramTranscript(raw []byte) (string, error) {
	var result deepgramResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode deepgram response: %w", err)
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	alt := result.Results.Channels[0].Alternatives[0]
	if text := strings.TrimSpace(alt.Transcript); text != "" {
		return text, nil
	}
	words := make([]string, 0, len(alt.Words))
	for _, w := range alt.Words {
		if w.PunctuatedWord != "" {
			words = append(words, w.PunctuatedWord)
		} else if w.Word != "" {
			words = append(words, w.Word)
		}
	}
	return strings.Join(words, " "), nil
}
