// Package stream folds an incrementally delivered chat reply into the
// message history as a single growing assistant message.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/sjawhar/parlo/internal/conversation"
)

var ErrStreamInterrupted = errors.New("chat stream interrupted")

const defaultChunkSize = 4096

// Reconciler is the sole writer of the in-progress assistant message while a
// stream is being consumed.
type Reconciler struct {
	writer    conversation.MessageWriter
	chunkSize int
}

func NewReconciler(writer conversation.MessageWriter) *Reconciler {
	return &Reconciler{writer: writer, chunkSize: defaultChunkSize}
}

// Update is reported after each chunk is folded in.
type Update struct {
	Text  string
	First bool
}

// Consume reads body until EOF, appending one assistant message on the first
// chunk and replacing its content on every later chunk. onUpdate, if set,
// runs after each write. The body is closed on return.
//
// On a transport error the partial text stays in the history and the error
// wraps ErrStreamInterrupted. A stream that ends before any text arrives
// yields an empty result and no message.
func (r *Reconciler) Consume(ctx context.Context, body io.ReadCloser, onUpdate func(Update)) (string, error) {
	defer body.Close()

	var (
		acc     strings.Builder
		pending []byte
		started bool
	)
	buf := make([]byte, r.chunkSize)

	flush := func(final bool) {
		text := decodeComplete(&pending, final)
		if text == "" {
			return
		}
		acc.WriteString(text)
		first := !started
		if first {
			r.writer.Append(conversation.RoleAssistant, acc.String())
			started = true
		} else {
			r.writer.ReplaceLastAssistant(acc.String())
		}
		if onUpdate != nil {
			onUpdate(Update{Text: acc.String(), First: first})
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			flush(true)
			return acc.String(), fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
		}

		n, err := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			flush(false)
		}
		if err != nil {
			flush(true)
			if errors.Is(err, io.EOF) {
				return acc.String(), nil
			}
			return acc.String(), fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
		}
	}
}

// decodeComplete returns the longest prefix of *pending that ends on a rune
// boundary and keeps the remainder for the next chunk. When final is set the
// remainder is flushed as-is.
func decodeComplete(pending *[]byte, final bool) string {
	data := *pending
	if len(data) == 0 {
		return ""
	}
	if final {
		*pending = nil
		return strings.ToValidUTF8(string(data), "�")
	}

	cut := len(data)
	for i := 1; i <= utf8.UTFMax && i <= len(data); i++ {
		b := data[len(data)-i]
		if !utf8.RuneStart(b) {
			continue
		}
		if !utf8.FullRune(data[len(data)-i:]) {
			cut = len(data) - i
		}
		break
	}

	text := strings.ToValidUTF8(string(data[:cut]), "�")
	*pending = append(data[:0:0], data[cut:]...)
	return text
}
