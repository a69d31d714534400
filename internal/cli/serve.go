package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sjawhar/parlo/internal/chat"
	"github.com/sjawhar/parlo/internal/config"
	"github.com/sjawhar/parlo/internal/server"
	"github.com/sjawhar/parlo/internal/speech"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway for chat, transcription and speech",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				deps.Config.ListenAddr = addr
			}
			return runServe(cmd.Context(), deps)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides listen_addr)")
	return cmd
}

func runServe(ctx context.Context, deps *Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := deps.Config
	logger, _, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	for _, w := range deps.Warnings {
		logger.Warn("config warning", "message", w)
	}

	gw, closeGateway := buildGateway(ctx, cfg, logger)
	defer closeGateway()

	hub := server.NewHub()
	hub.SetLogger(logger)
	h := server.Handler(hub, gw, server.ControlHooks{
		Warnings: func() []string { return deps.Warnings },
	}, logger)

	logger.Info("gateway listening", "addr", cfg.ListenAddr, "model", gw.Model)
	if err := server.Serve(ctx, cfg.ListenAddr, h, logger); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// buildGateway leaves a collaborator nil when its provider is not
// configured; the matching route then answers with a missing key error.
func buildGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.Gateway, func()) {
	gw := &server.Gateway{
		ChatProvider:        cfg.ChatProvider(),
		TranscriberProvider: cfg.Transcriber,
		SynthesizerProvider: cfg.Synthesizer,
		Model:               cfg.ChatModel,
	}
	closeFn := func() {}

	if svc, err := newChatService(cfg, logger); err != nil {
		logger.Warn("chat route disabled", "error", err)
	} else {
		gw.Chat = chat.Opener(svc)
	}

	sc := speechConfig(cfg, logger)
	if tr, err := speech.NewTranscriber(ctx, sc); err != nil {
		logger.Warn("transcribe route disabled", "error", err)
	} else {
		gw.Transcriber = tr
		if cl, ok := tr.(interface{ Close() error }); ok {
			closeFn = func() { _ = cl.Close() }
		}
	}
	if sy, err := speech.NewSynthesizer(sc); err != nil {
		logger.Warn("tts route disabled", "error", err)
	} else {
		gw.Synthesizer = sy
	}
	return gw, closeFn
}
