// Package httpapi serves a local read-only status endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/suspectuso/proxipay/internal/presence"
)

// RosterSource returns the current nearby candidates.
type RosterSource interface {
	Snapshot() []presence.Candidate
}

// StatusSource reports a radio role's state.
type StatusSource interface {
	Status() presence.Status
}

// Checker is a dependency probed by /health.
type Checker interface {
	Ping(ctx context.Context) error
}

// Server exposes /health, /roster, /broadcast and /scan.
type Server struct {
	roster      RosterSource
	broadcaster StatusSource
	scanner     StatusSource
	checks      map[string]Checker
	log         *slog.Logger

	server *http.Server
}

// NewServer creates the status server. checks may be nil.
func NewServer(roster RosterSource, broadcaster, scanner StatusSource, checks map[string]Checker, log *slog.Logger) *Server {
	return &Server{
		roster:      roster,
		broadcaster: broadcaster,
		scanner:     scanner,
		checks:      checks,
		log:         log,
	}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/roster", s.handleRoster)
	mux.HandleFunc("/broadcast", s.handleStatus(s.broadcaster))
	mux.HandleFunc("/scan", s.handleStatus(s.scanner))
	return mux
}

// Start serves on port until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting status server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{Status: "ok"}
	code := http.StatusOK
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, c := range s.checks {
			if err := c.Ping(r.Context()); err != nil {
				s.log.Warn("health check failed", "check", name, "error", err)
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, code, resp)
}

type candidateView struct {
	Identifier string    `json:"identifier"`
	Name       string    `json:"name"`
	ImageURL   string    `json:"image_url,omitempty"`
	RSSI       int       `json:"rssi"`
	Proximity  string    `json:"proximity"`
	LastSeen   time.Time `json:"last_seen"`
	Enriching  bool      `json:"enriching"`
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap := s.roster.Snapshot()
	out := make([]candidateView, 0, len(snap))
	for _, c := range snap {
		out = append(out, candidateView{
			Identifier: c.Identifier,
			Name:       c.Label(),
			ImageURL:   c.ProfileImageURL,
			RSSI:       c.SignalStrength,
			Proximity:  c.Proximity().String(),
			LastSeen:   c.LastSeen,
			Enriching:  c.EnrichmentPending,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type statusView struct {
	State   string    `json:"state"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message,omitempty"`
	Since   time.Time `json:"since"`
}

func (s *Server) handleStatus(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		st := src.Status()
		v := statusView{State: st.State.String(), Since: st.At}
		if st.State == presence.StateError {
			v.Reason = string(st.Reason)
			v.Message = st.Reason.Message()
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
