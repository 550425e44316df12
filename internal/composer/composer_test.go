package composer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/proxipay/internal/backend"
	"github.com/suspectuso/proxipay/internal/composer"
	"github.com/suspectuso/proxipay/internal/presence"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSubmitter struct {
	mu      sync.Mutex
	calls   []backend.PaymentRequest
	result  *backend.PaymentResult
	err     error
	block   chan struct{}
	started chan struct{}
}

func (s *stubSubmitter) SubmitPaymentRequest(ctx context.Context, pr backend.PaymentRequest) (*backend.PaymentResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, pr)
	block, started := s.block, s.started
	s.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubRecorder struct {
	mu      sync.Mutex
	records []composer.Record
}

func (r *stubRecorder) SaveRecord(_ context.Context, rec composer.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func ready(c *composer.Composer, keys ...composer.Key) {
	c.SetRequester("100")
	c.Select(presence.Candidate{Identifier: "200", SignalStrength: -55, LastSeen: time.Now()})
	for _, k := range keys {
		c.Press(k)
	}
}

func TestSendRequestFailsFast(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *composer.Composer)
		want  error
	}{
		{
			name: "no candidate",
			setup: func(c *composer.Composer) {
				c.SetRequester("100")
				c.Press("5")
			},
			want: composer.ErrNoCandidate,
		},
		{
			name: "no requester",
			setup: func(c *composer.Composer) {
				c.Select(presence.Candidate{Identifier: "200"})
				c.Press("5")
			},
			want: composer.ErrNoRequester,
		},
		{
			name:  "zero amount",
			setup: func(c *composer.Composer) { ready(c) },
			want:  composer.ErrInvalidAmount,
		},
		{
			name:  "too large",
			setup: func(c *composer.Composer) { ready(c, "1", "0", "0", "0", "0") },
			want:  composer.ErrInvalidAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &stubSubmitter{result: &backend.PaymentResult{Success: true}}
			c := composer.New(sub, nil, discardLogger())
			tt.setup(c)

			if c.CanSubmit() {
				t.Fatal("submit enabled for an incomplete draft")
			}
			if err := c.Check(); !errors.Is(err, tt.want) {
				t.Fatalf("check = %v, want %v", err, tt.want)
			}
			st, err := c.SendRequest(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if st.Phase != composer.PhaseIdle {
				t.Fatalf("phase = %s", st.Phase)
			}
			if sub.callCount() != 0 {
				t.Fatal("network call issued for an invalid draft")
			}
		})
	}
}

func TestSendRequestSuccess(t *testing.T) {
	sub := &stubSubmitter{result: &backend.PaymentResult{Success: true}}
	rec := &stubRecorder{}
	c := composer.New(sub, rec, discardLogger())
	ready(c, "5", ".", "2", "5")

	if !c.CanSubmit() {
		t.Fatal("submit disabled for a complete draft")
	}
	st, err := c.SendRequest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Phase != composer.PhaseSuccess || st.Message != "Request sent" {
		t.Fatalf("unexpected state %+v", st)
	}
	if c.Display() != "0.00" {
		t.Fatalf("amount not cleared after success: %s", c.Display())
	}

	pr := sub.calls[0]
	if pr.MerchantIdentifier != "100" || pr.CustomerIdentifier != "200" || pr.Amount.String() != "5.25" {
		t.Fatalf("unexpected request %+v", pr)
	}
	if len(rec.records) != 1 || !rec.records[0].Success || !rec.records[0].Amount.Equal(decimal.RequireFromString("5.25")) {
		t.Fatalf("unexpected history %+v", rec.records)
	}
	if rec.records[0].RequestID == "" {
		t.Fatal("record has no request id")
	}
}

func TestSendRequestBackendFailureKeepsDraft(t *testing.T) {
	tests := []struct {
		name    string
		sub     *stubSubmitter
		message string
	}{
		{
			name:    "rejected",
			sub:     &stubSubmitter{result: &backend.PaymentResult{Success: false, Message: "Customer unavailable"}},
			message: "Customer unavailable",
		},
		{
			name:    "http error",
			sub:     &stubSubmitter{err: &backend.APIError{StatusCode: http.StatusBadGateway, Body: "upstream"}},
			message: "Backend error (502): upstream",
		},
		{
			name:    "transport error",
			sub:     &stubSubmitter{err: errors.New("connection refused")},
			message: "Network error: connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := composer.New(tt.sub, nil, discardLogger())
			ready(c, "7")

			st, err := c.SendRequest(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if st.Phase != composer.PhaseError || st.Message != tt.message {
				t.Fatalf("unexpected state %+v", st)
			}
			if c.Display() != "7.00" || !c.CanSubmit() {
				t.Fatal("draft not kept for retry")
			}
			if tt.sub.callCount() != 1 {
				t.Fatalf("calls = %d, want exactly one", tt.sub.callCount())
			}
		})
	}
}

func TestSendRequestInFlight(t *testing.T) {
	sub := &stubSubmitter{
		result:  &backend.PaymentResult{Success: true},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	c := composer.New(sub, nil, discardLogger())
	ready(c, "3")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.SendRequest(context.Background())
	}()
	<-sub.started

	if c.State().Phase != composer.PhaseProcessing {
		t.Fatalf("phase = %s", c.State().Phase)
	}
	if c.CanSubmit() {
		t.Fatal("submit enabled while processing")
	}
	if _, err := c.SendRequest(context.Background()); !errors.Is(err, composer.ErrInFlight) {
		t.Fatalf("err = %v", err)
	}
	if got := c.Press("9"); got != "3.00" {
		t.Fatalf("keypad changed while processing: %s", got)
	}

	close(sub.block)
	<-done
	if c.State().Phase != composer.PhaseSuccess {
		t.Fatalf("phase = %s", c.State().Phase)
	}
	if sub.callCount() != 1 {
		t.Fatalf("calls = %d", sub.callCount())
	}
}

func TestResetDiscardsDraft(t *testing.T) {
	c := composer.New(&stubSubmitter{}, nil, discardLogger())
	ready(c, "4", "2")
	c.Reset()

	if _, ok := c.Candidate(); ok {
		t.Fatal("candidate kept after reset")
	}
	if c.Display() != "0.00" || c.State().Phase != composer.PhaseIdle {
		t.Fatal("draft kept after reset")
	}
	if c.Requester() != "100" {
		t.Fatal("reset dropped the requester")
	}
}
