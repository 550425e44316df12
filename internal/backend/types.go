package backend

import (
	"encoding/json"
	"strings"
)

// PictureStatus is the response of GET /profile-picture/{id}.
type PictureStatus struct {
	HasPicture bool   `json:"has_picture"`
	ImageURL   string `json:"image_url"`
}

type profileRequest struct {
	Identifier string `json:"identifier"`
}

// Profile is the response of POST /profile.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FullName joins the non-empty name parts.
func (p Profile) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// PaymentRequest is the body of POST /payment-requests. The merchant is the
// requester and the customer is the payer who will approve it.
type PaymentRequest struct {
	MerchantIdentifier string      `json:"merchant_identifier"`
	CustomerIdentifier string      `json:"customer_identifier"`
	Amount             json.Number `json:"amount"`
}

// PaymentResult is the response of POST /payment-requests.
type PaymentResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
