// Package backend talks to the payment backend HTTP API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTimeout = 30 * time.Second

	defaultMinDelay = 100 * time.Millisecond
	requestIDHeader = "X-Request-ID"
)

// ErrMalformedResponse is returned when the backend answers 2xx with a body
// that cannot be decoded.
var ErrMalformedResponse = errors.New("malformed backend response")

// APIError is returned for responses with status >= 400.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// Client is the payment backend HTTP client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger

	// Rate limiting
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMinDelay sets the minimum spacing between calls.
func WithMinDelay(d time.Duration) Option {
	return func(c *Client) {
		c.minDelay = d
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a backend client.
func NewClient(baseURL, apiKey string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log:      log,
		minDelay: defaultMinDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type requestIDKey struct{}

// WithRequestID attaches a request id that doRequest sends instead of a
// freshly generated one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored in ctx, if any.
func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastCall)
	if wait := c.minDelay - elapsed; wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	c.lastCall = time.Now()
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	reqID, ok := RequestIDFrom(ctx)
	if !ok {
		reqID = uuid.NewString()
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("backend request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	c.log.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration", time.Since(start),
	)

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	return data, nil
}

func decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// GetProfilePicture returns whether identifier has a profile picture.
func (c *Client) GetProfilePicture(ctx context.Context, identifier string) (*PictureStatus, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/profile-picture/"+url.PathEscape(identifier), nil)
	if err != nil {
		return nil, err
	}

	var status PictureStatus
	if err := decode(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// LookupProfile returns the name registered for identifier.
func (c *Client) LookupProfile(ctx context.Context, identifier string) (*Profile, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/profile", profileRequest{Identifier: identifier})
	if err != nil {
		return nil, err
	}

	var p Profile
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SubmitPaymentRequest asks the backend to deliver a payment request to the
// customer. A 2xx answer with success=false is returned as a result, not an
// error.
func (c *Client) SubmitPaymentRequest(ctx context.Context, pr PaymentRequest) (*PaymentResult, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/payment-requests", pr)
	if err != nil {
		return nil, err
	}

	var res PaymentResult
	if err := decode(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ping checks that the backend answers at all.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}
