package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/sjawhar/parlo/internal/config"
	"github.com/sjawhar/parlo/internal/remote"
	"github.com/sjawhar/parlo/internal/server"
	"github.com/sjawhar/parlo/internal/speech"
)

func testConfig() *config.Config {
	return &config.Config{
		ChatModel:      "openai/gpt-4o-mini",
		Transcriber:    "openai",
		Synthesizer:    "elevenlabs",
		NativeLanguage: "French",
		TargetLanguage: "German",
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd(&Dependencies{Config: testConfig()})
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"chat", "serve", "devices", "doctor"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %q command, got %v", want, names)
		}
	}
}

func TestRequiredProvidersDeduplicates(t *testing.T) {
	cfg := testConfig()
	got := requiredProviders(cfg)
	want := []string{"openai", "elevenlabs"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	cfg.Transcriber = "google"
	cfg.Synthesizer = "openai"
	if got := requiredProviders(cfg); !reflect.DeepEqual(got, []string{"openai"}) {
		t.Fatalf("expected google to need no key, got %v", got)
	}
}

func TestProfileFromConfigFillsDefaults(t *testing.T) {
	p := profileFromConfig(testConfig())
	if p.NativeLanguage != "French" || p.TargetLanguage != "German" {
		t.Fatalf("unexpected languages %+v", p)
	}
	if p.Topic == "" {
		t.Fatal("expected default topic")
	}
}

func TestNewChatServiceRequiresKey(t *testing.T) {
	_, err := newChatService(testConfig(), nil)
	if !errors.Is(err, speech.ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}

	cfg := testConfig()
	cfg.OpenAIAPIKey = "sk-test"
	if _, err := newChatService(cfg, nil); err != nil {
		t.Fatalf("expected chat service, got %v", err)
	}
}

func TestSpeechConfigCarriesKeys(t *testing.T) {
	cfg := testConfig()
	cfg.ElevenLabsAPIKey = "xi"
	cfg.TTSVoice = "Rachel"
	sc := speechConfig(cfg, nil)
	if sc.ElevenLabsKey != "xi" || sc.TTSVoice != "Rachel" || sc.Synthesizer != "elevenlabs" {
		t.Fatalf("unexpected speech config %+v", sc)
	}
}

func TestBuildCollaboratorsRemote(t *testing.T) {
	cfg := testConfig()
	cfg.ServerURL = "http://localhost:8787"

	collab, err := buildCollaborators(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildCollaborators: %v", err)
	}
	client, ok := collab.chat.(*remote.Client)
	if !ok {
		t.Fatalf("expected remote chat, got %T", collab.chat)
	}
	if tr, _ := collab.transcriber.(*remote.Client); tr != client {
		t.Fatal("expected remote transcriber")
	}
	if sy, _ := collab.synthesizer.(*remote.Client); sy != client {
		t.Fatal("expected remote synthesizer")
	}
}

func TestBuildCollaboratorsMissingKey(t *testing.T) {
	_, err := buildCollaborators(context.Background(), testConfig(), discardLogger())
	if err == nil || !strings.Contains(err.Error(), "chat") {
		t.Fatalf("expected chat error, got %v", err)
	}
}

func TestGatewayWithoutKeysAnswersMissingKey(t *testing.T) {
	gw, closeFn := buildGateway(context.Background(), testConfig(), discardLogger())
	defer closeFn()
	if gw.Chat != nil || gw.Transcriber != nil || gw.Synthesizer != nil {
		t.Fatalf("expected no collaborators without keys, got %+v", gw)
	}

	h := server.Handler(server.NewHub(), gw, server.ControlHooks{}, discardLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(`{"text":"hola"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "ElevenLabs") {
		t.Fatalf("expected provider named in error, got %q", rr.Body.String())
	}
}

func TestFormatterCheck(t *testing.T) {
	var buf bytes.Buffer
	f := newFormatter(&buf)
	f.Check("Database", true, "data/parlo.db")
	f.Check("openai API key", false, "not set")

	out := buf.String()
	if !strings.Contains(out, "Database: data/parlo.db") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, "✗ openai API key") {
		t.Fatalf("expected failure mark, got %q", out)
	}
}

func TestFormatRates(t *testing.T) {
	if got := formatRates([]int{16000, 48000}); got != "16000, 48000" {
		t.Fatalf("unexpected %q", got)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
