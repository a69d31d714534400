package speech

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const (
	googleScope           = "https://www.googleapis.com/auth/cloud-platform"
	googleDefaultLanguage = "en-US"
	defaultWAVSampleRate  = 16000
)

type googleSpeech struct {
	client   *gspeech.Client
	language string
	logger   *slog.Logger
}

func newGoogle(ctx context.Context, cfg Config) (*googleSpeech, error) {
	var opts []option.ClientOption
	if cfg.GoogleCredentials != "" {
		data, err := os.ReadFile(cfg.GoogleCredentials)
		if err != nil {
			return nil, fmt.Errorf("read google credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSONWithTypeAndParams(ctx, data, google.ServiceAccount, google.CredentialsParams{
			Scopes: []string{googleScope},
		})
		if err != nil {
			return nil, fmt.Errorf("parse google credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	c, err := gspeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create google speech client: %w", err)
	}

	language := cfg.TranscribeLanguage
	if language == "" {
		language = googleDefaultLanguage
	}
	return &googleSpeech{client: c, language: language, logger: cfg.logger()}, nil
}

func (g *googleSpeech) Transcribe(ctx context.Context, audio []byte, _ string) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoAudio
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(wavSampleRate(audio)),
			LanguageCode:               g.language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", transportError("google transcription", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (g *googleSpeech) Close() error {
	return g.client.Close()
}

// wavSampleRate reads the rate out of a canonical RIFF header.
func wavSampleRate(data []byte) int {
	if len(data) < 28 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return defaultWAVSampleRate
	}
	rate := int(binary.LittleEndian.Uint32(data[24:28]))
	if rate <= 0 {
		return defaultWAVSampleRate
	}
	return rate
}
