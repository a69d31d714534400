package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sjawhar/parlo/internal/conversation"
)

// Writer appends finished conversation messages to one markdown file per day.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Append(msg conversation.Message, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	path := w.pathFor(at)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, FormatMarkdown(msg, at)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

func (w *Writer) CurrentPath() string {
	return w.pathFor(time.Now())
}

func (w *Writer) pathFor(at time.Time) string {
	return filepath.Join(w.dir, at.Format("2006-01-02")+".md")
}

func FormatMarkdown(msg conversation.Message, at time.Time) string {
	speaker := "Tutor"
	if msg.Role == conversation.RoleUser {
		speaker = "You"
	}
	text := strings.ReplaceAll(strings.TrimSpace(msg.Content), "\n", "\n> ")
	return fmt.Sprintf("**[%s] %s:** %s\n", at.Format("15:04:05"), speaker, text)
}
