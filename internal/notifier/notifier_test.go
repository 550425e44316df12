package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/suspectuso/proxipay/internal/presence"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (s *recordingSender) SendNotification(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[int64][]string)
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

func (s *recordingSender) count(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent[chatID])
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatchRadioReportsOncePerFailure(t *testing.T) {
	sender := &recordingSender{}
	n := New(sender, map[int64]bool{1: true, 2: true, 3: false}, discardLogger())

	ch := make(chan presence.Status)
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.WatchRadio(context.Background(), "Scanner", ch)
	}()

	disabled := presence.Status{State: presence.StateError, Reason: presence.ReasonRadioDisabled}
	ch <- disabled
	ch <- presence.Status{State: presence.StateStopped}
	ch <- disabled
	ch <- presence.Status{State: presence.StateScanning}
	ch <- disabled
	ch <- presence.Status{State: presence.StateError, Reason: presence.ReasonMissingPermission}
	close(ch)
	<-done

	if got := sender.count(1); got != 3 {
		t.Fatalf("operator 1 got %d notifications, want 3", got)
	}
	if sender.count(2) != 3 || sender.count(3) != 0 {
		t.Fatalf("unexpected fan-out %v", sender.sent)
	}
}

type flakyBackend struct {
	mu  sync.Mutex
	err error
}

func (b *flakyBackend) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *flakyBackend) set(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func TestBackendMonitorTransitions(t *testing.T) {
	sender := &recordingSender{}
	backend := &flakyBackend{}
	m := NewBackendMonitor(backend, New(sender, map[int64]bool{7: true}, discardLogger()), discardLogger())
	ctx := context.Background()

	m.check(ctx)
	if sender.count(7) != 0 {
		t.Fatal("healthy backend reported")
	}

	backend.set(errors.New("connection refused"))
	m.check(ctx)
	m.check(ctx)
	if sender.count(7) != 1 {
		t.Fatalf("outage reported %d times", sender.count(7))
	}

	backend.set(nil)
	m.check(ctx)
	if sender.count(7) != 2 {
		t.Fatalf("recovery not reported, got %d", sender.count(7))
	}
}

func TestBackendMonitorStopsOnCancel(t *testing.T) {
	m := NewBackendMonitor(&flakyBackend{}, New(&recordingSender{}, nil, discardLogger()), discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Start(ctx, 5*time.Millisecond)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
