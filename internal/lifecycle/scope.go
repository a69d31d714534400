// Package lifecycle holds the release primitives shared by the audio
// components: scoped teardown, one-shot release handles, spooled temporary
// files and cancellable frame loops.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
)

// Release frees one acquired resource.
type Release func() error

type entry struct {
	name    string
	release Release
}

// Scope collects releases and runs them in reverse acquisition order.
// Close is idempotent and safe to call from any exit path.
type Scope struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

func NewScope() *Scope {
	return &Scope{}
}

// Add registers release under name. Adding to a closed scope releases
// immediately so the resource cannot leak.
func (s *Scope) Add(name string, release Release) error {
	if release == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := release(); err != nil {
			return fmt.Errorf("release %s: %w", name, err)
		}
		return nil
	}
	s.entries = append(s.entries, entry{name: name, release: release})
	s.mu.Unlock()
	return nil
}

// AddFunc registers a release that cannot fail.
func (s *Scope) AddFunc(name string, fn func()) error {
	if fn == nil {
		return nil
	}
	return s.Add(name, func() error {
		fn()
		return nil
	})
}

func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		if err := entries[i].release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", entries[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// Once wraps release so that only the first call has effect. Later calls
// return the first call's error.
func Once(release Release) Release {
	var (
		once sync.Once
		err  error
	)
	return func() error {
		once.Do(func() {
			if release != nil {
				err = release()
			}
		})
		return err
	}
}
