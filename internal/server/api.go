package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sjawhar/parlo/internal/chat"
	"github.com/sjawhar/parlo/internal/speech"
)

const (
	maxUploadBytes  = 32 << 20
	maxRequestBytes = 1 << 20
	streamChunkSize = 4096
)

// Gateway holds the collaborators behind the /api routes. A nil collaborator
// answers with a missing-key error naming its provider.
type Gateway struct {
	Chat        chat.Opener
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer

	ChatProvider        string
	TranscriberProvider string
	SynthesizerProvider string
	Model               string
}

func registerGatewayRoutes(mux *http.ServeMux, gw *Gateway, logger *slog.Logger) {
	mux.HandleFunc("POST /api/conversation", func(w http.ResponseWriter, r *http.Request) {
		if gw.Chat == nil {
			writeText(w, http.StatusInternalServerError, missingKey(gw.ChatProvider))
			return
		}

		var req chat.Request
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
			writeText(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if err := req.Validate(); err != nil {
			writeText(w, http.StatusBadRequest, err.Error())
			return
		}

		body, err := gw.Chat.Open(r.Context(), req)
		if err != nil {
			logger.Warn("conversation failed", "topic", req.Topic, "error", err)
			writeUpstreamError(w, err)
			return
		}
		defer func() { _ = body.Close() }()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		if err := copyFlushing(w, body); err != nil {
			logger.Warn("conversation stream interrupted", "error", err)
			// Headers are already sent; abort so the client sees a truncated
			// body instead of a clean end of stream.
			panic(http.ErrAbortHandler)
		}
	})

	mux.HandleFunc("POST /api/transcribe", func(w http.ResponseWriter, r *http.Request) {
		if gw.Transcriber == nil {
			writeText(w, http.StatusInternalServerError, missingKey(gw.TranscriberProvider))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("audio")
		if err != nil {
			writeText(w, http.StatusBadRequest, "No audio file provided")
			return
		}
		defer func() { _ = file.Close() }()

		data, err := io.ReadAll(file)
		if err != nil {
			writeText(w, http.StatusBadRequest, fmt.Sprintf("read audio: %v", err))
			return
		}
		if len(data) == 0 {
			writeText(w, http.StatusBadRequest, "No audio file provided")
			return
		}

		text, err := gw.Transcriber.Transcribe(r.Context(), data, header.Filename)
		if err != nil {
			logger.Warn("transcription failed", "bytes", len(data), "error", err)
			writeUpstreamError(w, err)
			return
		}
		writeText(w, http.StatusOK, text)
	})

	mux.HandleFunc("POST /api/tts", func(w http.ResponseWriter, r *http.Request) {
		if gw.Synthesizer == nil {
			writeText(w, http.StatusInternalServerError, missingKey(gw.SynthesizerProvider))
			return
		}

		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
			writeText(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeText(w, http.StatusBadRequest, "Text is required")
			return
		}

		audio, err := gw.Synthesizer.Synthesize(r.Context(), req.Text)
		if err != nil {
			logger.Warn("speech synthesis failed", "chars", len(req.Text), "error", err)
			writeUpstreamError(w, err)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(audio)
	})
}

func registerControlRoutes(mux *http.ServeMux, hub *Hub, gw *Gateway, controls ControlHooks) {
	mux.HandleFunc("POST /api/playback/toggle", func(w http.ResponseWriter, r *http.Request) {
		if controls.TogglePlayback == nil {
			writeJSONError(w, http.StatusNotImplemented, "playback controls unavailable")
			return
		}
		if err := controls.TogglePlayback(); err != nil {
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/playback/seek", func(w http.ResponseWriter, r *http.Request) {
		if controls.Seek == nil {
			writeJSONError(w, http.StatusNotImplemented, "playback controls unavailable")
			return
		}
		at, err := strconv.ParseFloat(r.URL.Query().Get("at"), 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid seek position")
			return
		}
		if err := controls.Seek(at); err != nil {
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{"subscribers": hub.Subscribers()}
		if gw != nil {
			status["model"] = gw.Model
			status["transcriber"] = gw.TranscriberProvider
			status["synthesizer"] = gw.SynthesizerProvider
		}
		if controls.Snapshot != nil {
			status["session"] = controls.Snapshot()
		}
		var warnings []string
		if controls.Warnings != nil {
			warnings = controls.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		status["warnings"] = warnings
		writeJSON(w, http.StatusOK, status)
	})
}

// copyFlushing forwards each chunk as it arrives so clients can render
// partial replies.
func copyFlushing(w http.ResponseWriter, body io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, streamChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	var status *speech.StatusError
	switch {
	case errors.As(err, &status):
		body := status.Body
		if body == "" {
			body = http.StatusText(status.Code)
		}
		writeText(w, status.Code, body)
	case errors.Is(err, chat.ErrInvalidProfile), errors.Is(err, chat.ErrEmptyHistory),
		errors.Is(err, speech.ErrEmptyText), errors.Is(err, speech.ErrNoAudio):
		writeText(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, speech.ErrTransport):
		writeText(w, http.StatusBadGateway, err.Error())
	default:
		writeText(w, http.StatusInternalServerError, "Error processing request")
	}
}

var providerNames = map[string]string{
	"openai":     "OpenAI",
	"anthropic":  "Anthropic",
	"gemini":     "Gemini",
	"deepgram":   "Deepgram",
	"google":     "Google",
	"elevenlabs": "ElevenLabs",
}

func missingKey(provider string) string {
	name, ok := providerNames[provider]
	if !ok {
		name = "OpenAI"
	}
	return fmt.Sprintf("Missing %s API key", name)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
