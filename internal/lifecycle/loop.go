package lifecycle

import (
	"context"
	"sync"
	"time"
)

// Loop runs a callback on a fixed interval until stopped.
type Loop struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartLoop calls fn every interval until ctx is done or Stop is called. fn
// receives the time of the tick.
func StartLoop(ctx context.Context, interval time.Duration, fn func(time.Time)) *Loop {
	if interval <= 0 {
		interval = time.Second / 30
	}
	ctx, cancel := context.WithCancel(ctx)
	l := &Loop{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				// Re-check so a tick racing with Stop never runs.
				if ctx.Err() != nil {
					return
				}
				fn(now)
			}
		}
	}()
	return l
}

// Stop cancels the loop and waits for any in-progress callback to return.
// Must not be called from inside fn.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.once.Do(l.cancel)
	<-l.done
}

// Release adapts Stop for use in a Scope.
func (l *Loop) Release() error {
	l.Stop()
	return nil
}

func (l *Loop) Done() <-chan struct{} {
	return l.done
}
