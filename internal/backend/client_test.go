package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/suspectuso/proxipay/internal/backend"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.Handler) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return backend.NewClient(srv.URL+"/", "secret", discardLogger(), backend.WithMinDelay(0))
}

func TestSubmitPaymentRequest(t *testing.T) {
	var got backend.PaymentRequest
	var auth, reqID string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/payment-requests" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		reqID = r.Header.Get("X-Request-ID")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true,"message":"sent"}`))
	}))

	ctx := backend.WithRequestID(context.Background(), "req-1")
	res, err := c.SubmitPaymentRequest(ctx, backend.PaymentRequest{
		MerchantIdentifier: "10",
		CustomerIdentifier: "20",
		Amount:             json.Number("5.25"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Message != "sent" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got.MerchantIdentifier != "10" || got.CustomerIdentifier != "20" || got.Amount.String() != "5.25" {
		t.Fatalf("unexpected body %+v", got)
	}
	if auth != "Bearer secret" {
		t.Fatalf("authorization = %q", auth)
	}
	if reqID != "req-1" {
		t.Fatalf("request id = %q", reqID)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	var reqID string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`{}`))
	}))

	if err := c.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(reqID) != 36 {
		t.Fatalf("expected a uuid request id, got %q", reqID)
	}
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "customer not found", http.StatusNotFound)
	}))

	_, err := c.SubmitPaymentRequest(context.Background(), backend.PaymentRequest{Amount: "1.00"})
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Body != "customer not found" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestMalformedResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))

	_, err := c.LookupProfile(context.Background(), "1")
	if !errors.Is(err, backend.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestProfileEnricher(t *testing.T) {
	var pictureCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/profile-picture/", func(w http.ResponseWriter, r *http.Request) {
		pictureCalls.Add(1)
		switch r.URL.Path {
		case "/profile-picture/7":
			_, _ = w.Write([]byte(`{"has_picture":true,"image_url":"https://cdn/7.png"}`))
		case "/profile-picture/8":
			_, _ = w.Write([]byte(`{"has_picture":false,"image_url":"https://cdn/ignored.png"}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Identifier string `json:"identifier"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body.Identifier {
		case "7":
			_, _ = w.Write([]byte(`{"first_name":"Ada","last_name":"Lovelace"}`))
		case "8":
			_, _ = w.Write([]byte(`{"first_name":"Grace","last_name":""}`))
		default:
			http.Error(w, "unknown", http.StatusNotFound)
		}
	})

	e := backend.NewProfileEnricher(newTestClient(t, mux), discardLogger())

	p, err := e.Enrich(context.Background(), "7")
	if err != nil {
		t.Fatal(err)
	}
	if p.DisplayName != "Ada Lovelace" || p.ImageURL != "https://cdn/7.png" {
		t.Fatalf("unexpected profile %+v", p)
	}

	p, err = e.Enrich(context.Background(), "8")
	if err != nil {
		t.Fatal(err)
	}
	if p.DisplayName != "Grace" || p.ImageURL != "" {
		t.Fatalf("unexpected profile %+v", p)
	}

	if _, err := e.Enrich(context.Background(), "9"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
	if pictureCalls.Load() != 3 {
		t.Fatalf("picture calls = %d", pictureCalls.Load())
	}
}
