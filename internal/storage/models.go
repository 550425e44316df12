package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session keys.
const (
	KeyAccountIdentifier = "account_identifier"
)

// PaymentRequest is one submission attempt, successful or not.
type PaymentRequest struct {
	ID        int64
	RequestID string // uuid sent as X-Request-ID
	Requester string
	Payer     string
	Amount    decimal.Decimal
	Status    RequestStatus
	Message   string
	CreatedAt time.Time
}

type RequestStatus string

const (
	StatusSent   RequestStatus = "sent"
	StatusFailed RequestStatus = "failed"
)

// Product is a catalog entry that can be put in the cart.
type Product struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
}
