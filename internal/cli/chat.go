package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sjawhar/parlo/internal/audio"
	"github.com/sjawhar/parlo/internal/config"
	"github.com/sjawhar/parlo/internal/conversation"
	"github.com/sjawhar/parlo/internal/playback"
	"github.com/sjawhar/parlo/internal/server"
	"github.com/sjawhar/parlo/internal/session"
	"github.com/sjawhar/parlo/internal/storage"
	"github.com/sjawhar/parlo/internal/tui"
	"github.com/sjawhar/parlo/internal/visual"
)

const framesPerBuffer = 1024

func NewChatCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the chat window (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), deps)
		},
	}
}

func runChat(ctx context.Context, deps *Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := deps.Config
	logger, closeLog, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()
	for _, w := range deps.Warnings {
		logger.Warn("config warning", "message", w)
	}

	terminate, err := audio.Initialize()
	if err != nil {
		logger.Warn("microphone support unavailable", "error", err)
	} else {
		defer func() { _ = terminate() }()
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	defer func() { _ = store.Close() }()

	profile, err := store.LoadProfile(profileFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	state := conversation.NewState(profile)

	collab, err := buildCollaborators(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer collab.Close()

	hub := server.NewHub()
	hub.SetLogger(logger)

	player := playback.NewController(playback.NewBeepEngine(playback.DefaultOutputRate), state, playback.WithLogger(logger))
	defer func() { _ = player.Close() }()

	recorder := audio.NewRecorder(
		audio.MicOpener(framesPerBuffer, cfg.SampleRateCandidates()),
		collab.transcriber,
		audio.WithSampleRate(cfg.MicSampleRate),
		audio.WithEnergyThreshold(cfg.EnergyThreshold),
		audio.WithLogger(logger),
	)

	canvas := tui.NewCanvas(0, 1)
	vis := visual.NewVisualizer(canvas, visual.Options{
		Bins:         cfg.VisualizerBins,
		FPS:          cfg.VisualizerFPS,
		ShowProgress: true,
		Logger:       logger,
	})
	defer func() { _ = vis.Close() }()

	var program atomic.Pointer[tea.Program]
	opts := []session.Option{
		session.WithLogger(logger),
		session.WithProfileStore(store),
		session.WithRecordingLimit(cfg.ParsedMaxRecording(), func(res audio.Result) {
			if p := program.Load(); p != nil {
				p.Send(tui.RecordingStopped(res))
			}
		}),
	}
	if cfg.TranscriptDir != "" {
		opts = append(opts, session.WithTranscript(storage.NewWriter(cfg.TranscriptDir)))
	}
	orch := session.NewOrchestrator(state, collab.chat, collab.synthesizer, player, recorder, vis, hub, opts...)
	defer func() { _ = orch.Close() }()

	if cfg.EventsAddr != "" {
		go serveEvents(ctx, cfg.EventsAddr, hub, orch, deps.Warnings, logger)
	}

	events := hub.Subscribe()
	defer hub.Unsubscribe(events)

	model := tui.New(tui.Options{
		Context:    ctx,
		Controller: orch,
		State:      state,
		Clicker:    vis,
		Canvas:     canvas,
		Events:     events,
		FPS:        cfg.VisualizerFPS,
		Warnings:   deps.Warnings,
		Logger:     logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	program.Store(p)

	logger.Info("chat window starting", "model", cfg.ChatModel, "topic", profile.Topic)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run chat window: %w", err)
	}
	return nil
}

// serveEvents exposes the session event stream and playback controls for
// companion clients.
func serveEvents(ctx context.Context, addr string, hub *server.Hub, orch *session.Orchestrator, warnings []string, logger *slog.Logger) {
	h := server.Handler(hub, nil, server.ControlHooks{
		TogglePlayback: orch.TogglePlayback,
		Seek:           orch.Seek,
		Snapshot:       func() any { return orch.Snapshot() },
		Warnings:       func() []string { return warnings },
	}, logger)
	if err := server.Serve(ctx, addr, h, logger); err != nil {
		logger.Error("event server stopped", "addr", addr, "error", err)
	}
}

func profileFromConfig(cfg *config.Config) conversation.Profile {
	return conversation.Profile{
		NativeLanguage: cfg.NativeLanguage,
		TargetLanguage: cfg.TargetLanguage,
		Topic:          cfg.Topic,
	}.WithDefaults()
}
