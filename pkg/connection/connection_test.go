package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBackoffSequenceDoublesToMax(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    time.Second,
		Max:        8 * time.Second,
		Multiplier: 2,
		Jitter:     0,
	})

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("delay %d = %v, want %v", i, got, w)
		}
	}
	if b.Attempts() != len(want) {
		t.Errorf("attempts = %d, want %d", b.Attempts(), len(want))
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial: time.Second,
		Jitter:  0.25,
	})

	d := b.Next()
	if d < time.Second || d > 1250*time.Millisecond {
		t.Errorf("jittered delay %v outside [1s, 1.25s]", d)
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Jitter: 0})

	b.Next()
	b.Next()
	b.Reset()

	if b.Attempts() != 0 {
		t.Errorf("attempts after reset = %d", b.Attempts())
	}
	if got := b.Next(); got != time.Second {
		t.Errorf("delay after reset = %v, want 1s", got)
	}
}

func TestManagerRetriesUntilOnline(t *testing.T) {
	dialErr := errors.New("device out of range")
	sessionEnd := errors.New("session ended")

	var mu sync.Mutex
	var attempts, onlines int
	var retries []time.Duration

	ctx, cancel := context.WithCancel(context.Background())

	run := func(ctx context.Context, online func()) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return dialErr
		}
		online()
		// Session served, then died. Stop the loop from the test side.
		cancel()
		return sessionEnd
	}

	var offlineErr error
	m := NewManager(run, ManagerConfig{
		Backoff: BackoffConfig{Initial: time.Millisecond, Jitter: 0},
		OnOnline: func() {
			mu.Lock()
			onlines++
			mu.Unlock()
		},
		OnOffline: func(err error) { offlineErr = err },
		OnRetry: func(attempt int, delay time.Duration) {
			mu.Lock()
			retries = append(retries, delay)
			mu.Unlock()
		},
	})

	if err := m.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if onlines != 1 {
		t.Errorf("online callbacks = %d, want 1", onlines)
	}
	if len(retries) != 2 {
		t.Errorf("retry callbacks = %d, want 2", len(retries))
	}
	if !errors.Is(offlineErr, sessionEnd) {
		t.Errorf("offline reason = %v, want session end error", offlineErr)
	}
}

func TestManagerResetsBackoffAfterOnline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var attempts int
	run := func(ctx context.Context, online func()) error {
		attempts++
		switch attempts {
		case 1, 2:
			return errors.New("dial failed")
		case 3:
			online()
			return errors.New("lost")
		default:
			cancel()
			return errors.New("dial failed")
		}
	}

	var delays []time.Duration
	m := NewManager(run, ManagerConfig{
		Backoff: BackoffConfig{Initial: time.Millisecond, Multiplier: 2, Jitter: 0},
		OnRetry: func(attempt int, delay time.Duration) {
			delays = append(delays, delay)
		},
	})
	m.Run(ctx)

	// Delays grow while dialing fails, then restart at the initial
	// value once a session was up.
	want := []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		time.Millisecond,
	}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestManagerStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager(func(ctx context.Context, online func()) error {
		return ctx.Err()
	}, ManagerConfig{})

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
