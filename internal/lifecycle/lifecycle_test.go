package lifecycle

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScopeReleasesInReverseOrder(t *testing.T) {
	s := NewScope()
	var order []string
	for _, name := range []string{"mic", "graph", "url"} {
		n := name
		_ = s.AddFunc(n, func() { order = append(order, n) })
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{"url", "graph", "mic"}
	if len(order) != len(want) {
		t.Fatalf("expected %d releases, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("release %d: expected %q, got %q", i, want[i], order[i])
		}
	}
}

func TestScopeCloseIsIdempotent(t *testing.T) {
	s := NewScope()
	calls := 0
	_ = s.AddFunc("x", func() { calls++ })

	_ = s.Close()
	_ = s.Close()

	if calls != 1 {
		t.Fatalf("expected 1 release, got %d", calls)
	}
}

func TestScopeJoinsErrorsAndContinues(t *testing.T) {
	s := NewScope()
	errA := errors.New("a failed")
	released := false
	_ = s.AddFunc("ok", func() { released = true })
	_ = s.Add("bad", func() error { return errA })

	err := s.Close()
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error to wrap errA, got %v", err)
	}
	if !released {
		t.Fatal("expected remaining release to run after failure")
	}
}

func TestScopeAddAfterCloseReleasesImmediately(t *testing.T) {
	s := NewScope()
	_ = s.Close()

	released := false
	_ = s.AddFunc("late", func() { released = true })
	if !released {
		t.Fatal("expected immediate release on closed scope")
	}
}

func TestOnceRunsOnce(t *testing.T) {
	var calls int32
	r := Once(func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r()
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestSpoolFileRelease(t *testing.T) {
	path, release, err := SpoolFile([]byte("ID3data"), "parlo-*.mp3")
	if err != nil {
		t.Fatalf("spool: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read spool: %v", err)
	}
	if string(data) != "ID3data" {
		t.Fatalf("unexpected spool content %q", data)
	}

	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected spool file removed, stat err=%v", err)
	}
}

func TestLoopStopsSynchronously(t *testing.T) {
	var ticks int32
	loop := StartLoop(context.Background(), 2*time.Millisecond, func(time.Time) {
		atomic.AddInt32(&ticks, 1)
	})

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&ticks) < 3 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for ticks")
		case <-time.After(time.Millisecond):
		}
	}

	loop.Stop()
	after := atomic.LoadInt32(&ticks)
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&ticks); got != after {
		t.Fatalf("expected no ticks after stop, got %d more", got-after)
	}

	loop.Stop()
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := StartLoop(ctx, time.Millisecond, func(time.Time) {})
	cancel()

	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after context cancel")
	}
}
