// Package llm adapts the hosted chat providers to one interface with a
// blocking completion and an incremental text stream.
package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	// Stream returns the reply as raw UTF-8 text deltas. Read returns io.EOF
	// once the provider signals completion; any other error means the reply
	// was cut short.
	Stream(ctx context.Context, messages []Message) (io.ReadCloser, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL   string
	maxTokens int64
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithMaxTokens caps reply length for providers that require a cap.
func WithMaxTokens(n int64) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{maxTokens: 2048}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}

// deltaReader pulls provider deltas on demand so that bytes reach the reader
// as soon as the provider emits them.
type deltaReader struct {
	next func() (string, error)
	stop func() error

	buf       []byte
	err       error
	closeOnce sync.Once
	closeErr  error
}

func newDeltaReader(next func() (string, error), stop func() error) *deltaReader {
	return &deltaReader{next: next, stop: stop}
}

func (r *deltaReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		delta, err := r.next()
		if err != nil {
			r.err = err
		}
		r.buf = append(r.buf, delta...)
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *deltaReader) Close() error {
	r.closeOnce.Do(func() {
		if r.stop != nil {
			r.closeErr = r.stop()
		}
	})
	return r.closeErr
}
