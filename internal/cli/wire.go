package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sjawhar/parlo/internal/chat"
	"github.com/sjawhar/parlo/internal/config"
	"github.com/sjawhar/parlo/internal/llm"
	"github.com/sjawhar/parlo/internal/remote"
	"github.com/sjawhar/parlo/internal/speech"
)

const defaultLogFile = "data/parlo.log"

// newLogger writes to stderr, or to the log file when the terminal belongs to
// the chat window.
func newLogger(cfg *config.Config, toFile bool) (*slog.Logger, func(), error) {
	if !toFile {
		return slog.New(slog.NewTextHandler(os.Stderr, nil)), func() {}, nil
	}

	path := cfg.LogFile
	if path == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, nil)), func() { _ = f.Close() }, nil
}

func speechConfig(cfg *config.Config, logger *slog.Logger) speech.Config {
	return speech.Config{
		Transcriber:        cfg.Transcriber,
		TranscribeModel:    cfg.TranscribeModel,
		TranscribeLanguage: cfg.TranscribeLanguage,
		Synthesizer:        cfg.Synthesizer,
		TTSModel:           cfg.TTSModel,
		TTSVoice:           cfg.TTSVoice,
		OpenAIKey:          cfg.OpenAIAPIKey,
		OpenAIBaseURL:      cfg.OpenAIBaseURL,
		DeepgramKey:        cfg.DeepgramAPIKey,
		DeepgramHost:       cfg.DeepgramHost,
		ElevenLabsKey:      cfg.ElevenLabsAPIKey,
		ElevenLabsBaseURL:  cfg.ElevenLabsBaseURL,
		GoogleCredentials:  cfg.GoogleCredentialsFile,
		Logger:             logger,
	}
}

func newChatService(cfg *config.Config, logger *slog.Logger) (*chat.Service, error) {
	factory := func(provider, model string) (llm.Client, error) {
		key := cfg.APIKey(provider)
		if key == "" {
			return nil, fmt.Errorf("%w: %s", speech.ErrMissingKey, provider)
		}
		var opts []llm.Option
		if provider == "openai" && cfg.OpenAIBaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.OpenAIBaseURL))
		}
		return llm.NewClient(provider, key, model, opts...)
	}
	return chat.NewFromModel(cfg.ChatModel, factory, logger)
}

type collaborators struct {
	chat        chat.Opener
	transcriber speech.Transcriber
	synthesizer speech.Synthesizer
	closers     []io.Closer
}

func (c *collaborators) Close() {
	for _, cl := range c.closers {
		_ = cl.Close()
	}
}

// buildCollaborators reaches the providers directly, or through a parlo
// server when server_url is set.
func buildCollaborators(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*collaborators, error) {
	if cfg.Remote() {
		c, err := remote.New(cfg.ServerURL, remote.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		logger.Info("using remote gateway", "url", cfg.ServerURL)
		return &collaborators{chat: c, transcriber: c, synthesizer: c}, nil
	}

	svc, err := newChatService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	out := &collaborators{chat: svc}

	sc := speechConfig(cfg, logger)
	out.transcriber, err = speech.NewTranscriber(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("transcriber: %w", err)
	}
	if cl, ok := out.transcriber.(io.Closer); ok {
		out.closers = append(out.closers, cl)
	}
	out.synthesizer, err = speech.NewSynthesizer(sc)
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("synthesizer: %w", err)
	}
	return out, nil
}
