package speech

import (
	"errors"
	"fmt"
)

var (
	ErrTransport  = errors.New("speech transport failure")
	ErrMissingKey = errors.New("missing API key")
	ErrEmptyText  = errors.New("text cannot be empty")
	ErrNoAudio    = errors.New("no audio provided")
)

// StatusError is a non-success response from a collaborator. It matches
// ErrTransport under errors.Is.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
}
