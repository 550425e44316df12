package notifier

import (
	"context"
	"log/slog"
	"time"
)

// Pinger is a dependency the monitor probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendMonitor pings the backend and tells operators when it goes down
// and when it comes back.
type BackendMonitor struct {
	backend  Pinger
	notifier *Notifier
	log      *slog.Logger

	down bool
}

func NewBackendMonitor(backend Pinger, notifier *Notifier, log *slog.Logger) *BackendMonitor {
	return &BackendMonitor{
		backend:  backend,
		notifier: notifier,
		log:      log,
	}
}

// Start runs the check loop until ctx is cancelled.
func (m *BackendMonitor) Start(ctx context.Context, interval time.Duration) {
	m.log.Info("backend monitor started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *BackendMonitor) check(ctx context.Context) {
	err := m.backend.Ping(ctx)
	switch {
	case err != nil && !m.down:
		if ctx.Err() != nil {
			return
		}
		m.down = true
		m.log.Warn("backend unreachable", "error", err)
		m.notifier.Broadcast(ctx, "⚠️ <b>Backend unreachable</b>\n\nPayment requests will fail until it recovers.")
	case err == nil && m.down:
		m.down = false
		m.log.Info("backend recovered")
		m.notifier.Broadcast(ctx, "✅ Backend is reachable again.")
	}
}
