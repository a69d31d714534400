// Package remote talks to a parlo gateway over HTTP and satisfies the
// chat, transcription and synthesis collaborator interfaces.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/sjawhar/parlo/internal/chat"
	"github.com/sjawhar/parlo/internal/speech"
)

const (
	conversationPath = "/api/conversation"
	transcribePath   = "/api/transcribe"
	ttsPath          = "/api/tts"
	statusPath       = "/api/status"

	maxErrorBody = 4096
)

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var (
	_ chat.Opener        = (*Client)(nil)
	_ speech.Transcriber = (*Client)(nil)
	_ speech.Synthesizer = (*Client)(nil)
)

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	c := &Client{
		baseURL: baseURL,
		// No client timeout: conversation bodies stream for as long as the
		// model keeps writing. Requests are bounded by their contexts.
		http:   &http.Client{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Open posts the conversation and returns the streaming reply body.
func (c *Client) Open(ctx context.Context, req chat.Request) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation request: %w", err)
	}
	resp, err := c.post(ctx, conversationPath, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Transcribe uploads the segment as the multipart field "audio".
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", speech.ErrNoAudio
	}
	if filename == "" {
		filename = "recording.wav"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return "", fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	resp, err := c.post(ctx, transcribePath, mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcription: %w: %v", speech.ErrTransport, err)
	}
	return strings.TrimSpace(string(text)), nil
}

type ttsRequest struct {
	Text string `json:"text"`
}

func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, speech.ErrEmptyText
	}
	body, err := json.Marshal(ttsRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	resp, err := c.post(ctx, ttsPath, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesized audio: %w: %v", speech.ErrTransport, err)
	}
	return data, nil
}

// Status is the gateway's self-description.
type Status struct {
	Model       string   `json:"model"`
	Transcriber string   `json:"transcriber"`
	Synthesizer string   `json:"synthesizer"`
	Subscribers int      `json:"subscribers"`
	Warnings    []string `json:"warnings"`
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+statusPath, nil)
	if err != nil {
		return Status{}, fmt.Errorf("build status request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return Status{}, err
	}
	defer resp.Body.Close()

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}

// do sends req and turns any non-2xx response into a *speech.StatusError.
// On success the caller owns the body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", req.Method, req.URL.Path, speech.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("gateway returned error", "path", req.URL.Path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path,
			&speech.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))})
	}
	return resp, nil
}
