package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/suspectuso/proxipay/internal/backend"
	"github.com/suspectuso/proxipay/internal/presence"
)

var (
	ErrNoCandidate   = errors.New("no candidate selected")
	ErrNoRequester   = errors.New("requester identifier not set")
	ErrInvalidAmount = errors.New("amount must be between 0.01 and 9999.99")
	ErrInFlight      = errors.New("request already in progress")
	ErrRejected      = errors.New("payment request rejected")
)

// Phase is the submission state shown next to the keypad.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProcessing
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseProcessing:
		return "processing"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return "idle"
	}
}

// State is the phase plus the message to show in PhaseError or PhaseSuccess.
type State struct {
	Phase   Phase
	Message string
}

// Submitter delivers a payment request to the backend.
type Submitter interface {
	SubmitPaymentRequest(ctx context.Context, pr backend.PaymentRequest) (*backend.PaymentResult, error)
}

// Record is what gets written to history after each submission attempt.
type Record struct {
	RequestID string
	Requester string
	Payer     string
	Amount    decimal.Decimal
	Success   bool
	Message   string
	CreatedAt time.Time
}

// Recorder persists submission attempts. It may be nil.
type Recorder interface {
	SaveRecord(ctx context.Context, r Record) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, r Record) error

func (f RecorderFunc) SaveRecord(ctx context.Context, r Record) error {
	return f(ctx, r)
}

// Composer holds one draft request: the selected payer and the keypad.
type Composer struct {
	submitter Submitter
	recorder  Recorder
	log       *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	requester string
	candidate *presence.Candidate
	keypad    *Keypad
	state     State
}

// New creates a composer with an empty draft.
func New(submitter Submitter, recorder Recorder, log *slog.Logger) *Composer {
	return &Composer{
		submitter: submitter,
		recorder:  recorder,
		log:       log,
		now:       time.Now,
		keypad:    NewKeypad(),
	}
}

func (c *Composer) SetRequester(identifier string) {
	c.mu.Lock()
	c.requester = identifier
	c.mu.Unlock()
}

func (c *Composer) Requester() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requester
}

// Select picks the payer. A new selection resets the phase.
func (c *Composer) Select(cand presence.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidate = &cand
	if c.state.Phase != PhaseProcessing {
		c.state = State{}
	}
}

// Candidate returns the selected payer.
func (c *Composer) Candidate() (presence.Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.candidate == nil {
		return presence.Candidate{}, false
	}
	return *c.candidate, true
}

// Press forwards a key to the keypad and returns the displayed amount.
// Keys are ignored while a request is in flight.
func (c *Composer) Press(key Key) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase != PhaseProcessing {
		c.keypad.Press(key)
	}
	return c.keypad.Display()
}

// Prefill replaces the amount, e.g. with a cart total.
func (c *Composer) Prefill(amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keypad.Set(amount)
}

// Display returns the amount as shown to the user.
func (c *Composer) Display() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keypad.Display()
}

// CanSubmit reports whether the submit button should be enabled.
func (c *Composer) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.candidate != nil && c.requester != "" && c.keypad.Valid() && c.state.Phase != PhaseProcessing
}

func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset discards the draft: selection, amount and phase.
func (c *Composer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidate = nil
	c.keypad.Clear()
	c.state = State{}
}

// Check reports why the draft cannot be sent yet, or nil when it can.
func (c *Composer) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.checkLocked()
	return err
}

func (c *Composer) checkLocked() (decimal.Decimal, error) {
	switch {
	case c.state.Phase == PhaseProcessing:
		return decimal.Zero, ErrInFlight
	case c.candidate == nil:
		return decimal.Zero, ErrNoCandidate
	case c.requester == "":
		return decimal.Zero, ErrNoRequester
	}
	amount, err := ParseAmount(c.keypad.Buffer())
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// SendRequest submits the draft. Missing pieces fail before any network
// call. A failed submission leaves the draft intact so the user can retry.
func (c *Composer) SendRequest(ctx context.Context) (State, error) {
	c.mu.Lock()
	amount, err := c.checkLocked()
	if err != nil {
		st := c.state
		c.mu.Unlock()
		return st, err
	}
	requester, payer := c.requester, c.candidate.Identifier
	c.state = State{Phase: PhaseProcessing}
	c.mu.Unlock()

	reqID := uuid.NewString()
	ctx = backend.WithRequestID(ctx, reqID)
	log := c.log.With("request_id", reqID, "payer", payer, "amount", amount.StringFixed(2))
	log.Info("sending payment request")

	res, err := c.submitter.SubmitPaymentRequest(ctx, backend.PaymentRequest{
		MerchantIdentifier: requester,
		CustomerIdentifier: payer,
		Amount:             json.Number(amount.StringFixed(2)),
	})

	var st State
	switch {
	case err != nil:
		log.Error("payment request failed", "error", err)
		st = State{Phase: PhaseError, Message: failureMessage(err)}
		err = fmt.Errorf("submit payment request: %w", err)
	case !res.Success:
		log.Warn("payment request rejected", "message", res.Message)
		msg := res.Message
		if msg == "" {
			msg = "Request was rejected"
		}
		st = State{Phase: PhaseError, Message: msg}
		err = fmt.Errorf("%w: %s", ErrRejected, msg)
	default:
		log.Info("payment request sent")
		msg := res.Message
		if msg == "" {
			msg = "Request sent"
		}
		st = State{Phase: PhaseSuccess, Message: msg}
	}

	c.mu.Lock()
	c.state = st
	if st.Phase == PhaseSuccess {
		c.keypad.Clear()
	}
	c.mu.Unlock()

	c.record(Record{
		RequestID: reqID,
		Requester: requester,
		Payer:     payer,
		Amount:    amount,
		Success:   st.Phase == PhaseSuccess,
		Message:   st.Message,
		CreatedAt: c.now(),
	})
	return st, err
}

func (c *Composer) record(r Record) {
	if c.recorder == nil {
		return
	}
	// Recorded even when the caller's ctx is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.recorder.SaveRecord(ctx, r); err != nil {
		c.log.Warn("save payment request", "request_id", r.RequestID, "error", err)
	}
}

func failureMessage(err error) string {
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Body != "" {
			return fmt.Sprintf("Backend error (%d): %s", apiErr.StatusCode, apiErr.Body)
		}
		return fmt.Sprintf("Backend error (%d)", apiErr.StatusCode)
	case errors.Is(err, backend.ErrMalformedResponse):
		return "Unexpected response from backend"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled"
	default:
		return "Network error: " + err.Error()
	}
}
