package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sjawhar/parlo/internal/chat"
	"github.com/sjawhar/parlo/internal/conversation"
	"github.com/sjawhar/parlo/internal/speech"
)

type chatStub struct {
	mu     sync.Mutex
	chunks []string
	err    error
	got    chat.Request
}

func (c *chatStub) Open(_ context.Context, req chat.Request) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = req
	if c.err != nil {
		return nil, c.err
	}
	return io.NopCloser(strings.NewReader(strings.Join(c.chunks, ""))), nil
}

type transcriberStub struct {
	text     string
	err      error
	filename string
	audio    []byte
}

func (s *transcriberStub) Transcribe(_ context.Context, audio []byte, filename string) (string, error) {
	s.audio = audio
	s.filename = filename
	return s.text, s.err
}

type synthesizerStub struct {
	audio []byte
	err   error
	text  string
}

func (s *synthesizerStub) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.text = text
	return s.audio, s.err
}

func conversationBody(t *testing.T, profile conversation.Profile) io.Reader {
	t.Helper()
	req := chat.NewRequest([]conversation.Message{{Role: conversation.RoleUser, Content: "What is a noun?"}}, profile)
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewReader(b)
}

func TestAPIConversationStreamsText(t *testing.T) {
	stub := &chatStub{chunks: []string{"A ", "noun ", "is..."}}
	h := Handler(NewHub(), &Gateway{Chat: stub}, ControlHooks{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/conversation", conversationBody(t, conversation.DefaultProfile()))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("expected text/plain content-type, got %q", got)
	}
	if rr.Body.String() != "A noun is..." {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if !rr.Flushed {
		t.Fatal("expected streamed response to be flushed")
	}
	if stub.got.Topic != conversation.DefaultTopics[0] {
		t.Fatalf("expected topic to be forwarded, got %q", stub.got.Topic)
	}
}

func TestAPIConversationRejectsInvalidProfile(t *testing.T) {
	stub := &chatStub{}
	h := Handler(NewHub(), &Gateway{Chat: stub}, ControlHooks{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/conversation", conversationBody(t, conversation.Profile{Topic: "Travel"}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAPIConversationUpstreamStatus(t *testing.T) {
	stub := &chatStub{err: fmt.Errorf("open chat stream: %w", &speech.StatusError{Code: http.StatusTooManyRequests, Body: "rate limited"})}
	h := Handler(NewHub(), &Gateway{Chat: stub}, ControlHooks{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/conversation", conversationBody(t, conversation.DefaultProfile()))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected upstream status 429, got %d", rr.Code)
	}
	if rr.Body.String() != "rate limited" {
		t.Fatalf("expected upstream body, got %q", rr.Body.String())
	}
}

func TestAPIConversationUnknownFailure(t *testing.T) {
	stub := &chatStub{err: errors.New("boom")}
	h := Handler(NewHub(), &Gateway{Chat: stub}, ControlHooks{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/conversation", conversationBody(t, conversation.DefaultProfile()))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestAPIMissingKey(t *testing.T) {
	h := Handler(NewHub(), &Gateway{SynthesizerProvider: "openai"}, ControlHooks{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(`{"text":"hola"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if rr.Body.String() != "Missing OpenAI API key" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestAPITranscribe(t *testing.T) {
	stub := &transcriberStub{text: "hola"}
	h := Handler(NewHub(), &Gateway{Transcriber: stub}, ControlHooks{}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "recording.wav")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("wavbytes"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "hola" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if stub.filename != "recording.wav" || string(stub.audio) != "wavbytes" {
		t.Fatalf("unexpected upload %q %q", stub.filename, stub.audio)
	}
}

func TestAPITranscribeRequiresAudio(t *testing.T) {
	h := Handler(NewHub(), &Gateway{Transcriber: &transcriberStub{}}, ControlHooks{}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAPITTS(t *testing.T) {
	stub := &synthesizerStub{audio: []byte("mp3")}
	h := Handler(NewHub(), &Gateway{Synthesizer: stub}, ControlHooks{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(`{"text":"A noun is..."}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("expected audio/mpeg, got %q", got)
	}
	if rr.Body.String() != "mp3" || stub.text != "A noun is..." {
		t.Fatalf("unexpected tts exchange %q %q", stub.text, rr.Body.String())
	}
}

func TestAPITTSRequiresText(t *testing.T) {
	h := Handler(NewHub(), &Gateway{Synthesizer: &synthesizerStub{}}, ControlHooks{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(`{"text":"  "}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAPITTSTransportFailure(t *testing.T) {
	stub := &synthesizerStub{err: fmt.Errorf("openai speech: %w: dial failed", speech.ErrTransport)}
	h := Handler(NewHub(), &Gateway{Synthesizer: stub}, ControlHooks{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(`{"text":"hola"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

func TestAPIGatewayRoutesAbsentWithoutGateway(t *testing.T) {
	h := Handler(NewHub(), nil, ControlHooks{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(`{"text":"hola"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAPIStatusWithWarnings(t *testing.T) {
	h := Handler(NewHub(), &Gateway{Model: "openai/gpt-4o-mini", TranscriberProvider: "openai"}, ControlHooks{
		Warnings: func() []string {
			return []string{"PARLO_DEEPGRAM_API_KEY not configured"}
		},
		Snapshot: func() any { return map[string]string{"turn": "idle"} },
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `"model":"openai/gpt-4o-mini"`) {
		t.Fatalf("expected model in response, got %s", body)
	}
	if !strings.Contains(body, "PARLO_DEEPGRAM_API_KEY not configured") {
		t.Fatalf("expected warning message in response, got %s", body)
	}
	if !strings.Contains(body, `"turn":"idle"`) {
		t.Fatalf("expected session snapshot in response, got %s", body)
	}
}

func TestAPIStatusNoWarnings(t *testing.T) {
	h := Handler(NewHub(), nil, ControlHooks{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, `"warnings":[]`) {
		t.Fatalf("expected empty warnings array in response, got %s", body)
	}
}

func TestAPIPlaybackControls(t *testing.T) {
	var toggled int
	var seekedTo float64
	h := Handler(NewHub(), nil, ControlHooks{
		TogglePlayback: func() error { toggled++; return nil },
		Seek:           func(at float64) error { seekedTo = at; return nil },
	}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/playback/toggle", nil))
	if rr.Code != http.StatusNoContent || toggled != 1 {
		t.Fatalf("expected toggle to run, got status %d toggled %d", rr.Code, toggled)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/playback/seek?at=1.5", nil))
	if rr.Code != http.StatusNoContent || seekedTo != 1.5 {
		t.Fatalf("expected seek to 1.5, got status %d at %v", rr.Code, seekedTo)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/playback/seek?at=abc", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad seek, got %d", rr.Code)
	}
}

func TestAPIPlaybackControlsUnavailable(t *testing.T) {
	h := Handler(NewHub(), nil, ControlHooks{}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/playback/toggle", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rr.Code)
	}
}

func TestMissingKeyNames(t *testing.T) {
	tests := map[string]string{
		"openai":     "Missing OpenAI API key",
		"elevenlabs": "Missing ElevenLabs API key",
		"deepgram":   "Missing Deepgram API key",
		"":           "Missing OpenAI API key",
	}
	for provider, want := range tests {
		if got := missingKey(provider); got != want {
			t.Errorf("missingKey(%q) = %q, want %q", provider, got, want)
		}
	}
}
