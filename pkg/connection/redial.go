package connection

import (
	"context"
	"time"
)

// RunFunc dials the headset and serves the session until it ends. It
// must call online once the session is established, and return the
// reason the attempt or session ended.
type RunFunc func(ctx context.Context, online func()) error

// ManagerConfig configures a Manager. All fields are optional.
type ManagerConfig struct {
	Backoff BackoffConfig

	// OnOnline fires when a session comes up.
	OnOnline func()

	// OnOffline fires when an established session ends, with the
	// reason. It does not fire for attempts that never came up.
	OnOffline func(err error)

	// OnRetry fires before each backoff wait.
	OnRetry func(attempt int, delay time.Duration)
}

// Manager keeps redialing a headset until its context ends.
type Manager struct {
	run     RunFunc
	backoff *Backoff

	onOnline  func()
	onOffline func(err error)
	onRetry   func(attempt int, delay time.Duration)
}

// NewManager returns a manager around the given dial-and-serve
// function.
func NewManager(run RunFunc, cfg ManagerConfig) *Manager {
	return &Manager{
		run:       run,
		backoff:   NewBackoffWithConfig(cfg.Backoff),
		onOnline:  cfg.OnOnline,
		onOffline: cfg.OnOffline,
		onRetry:   cfg.OnRetry,
	}
}

// Run loops dial, serve, backoff until the context ends. It always
// returns the context's error.
func (m *Manager) Run(ctx context.Context) error {
	for {
		online := false
		err := m.run(ctx, func() {
			online = true
			m.backoff.Reset()
			if m.onOnline != nil {
				m.onOnline()
			}
		})
		if online && m.onOffline != nil {
			m.onOffline(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := m.backoff.Next()
		if m.onRetry != nil {
			m.onRetry(m.backoff.Attempts(), delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
