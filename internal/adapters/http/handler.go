package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/PabloGalante/kbrelay/internal/adapters/line"
	"github.com/PabloGalante/kbrelay/internal/app/session"
	"github.com/PabloGalante/kbrelay/internal/observability"
)

// Dispatcher verifies a webhook request and handles its events.
type Dispatcher interface {
	Dispatch(ctx context.Context, r *http.Request) error
}

// StatusReporter exposes the session snapshot for /status.
type StatusReporter interface {
	Status() session.Status
}

type Server struct {
	dispatcher Dispatcher
	status     StatusReporter
}

func NewServer(dispatcher Dispatcher, status StatusReporter) http.Handler {
	s := &Server{dispatcher: dispatcher, status: status}

	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(withLogging)
	r.Use(middleware.Recoverer)

	r.Post("/callback", s.handleCallback)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)

	return r
}

// handleCallback answers LINE only after every event in the batch has been
// handled. The request context is detached from the client connection so a
// dropped webhook connection does not abort a reply in progress.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	log := observability.WithFields(ctx, "component", "http")

	err := s.dispatcher.Dispatch(ctx, r)
	switch {
	case err == nil:
	case errors.Is(err, line.ErrInvalidSignature):
		log.Error().Msg("invalid webhook signature")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	default:
		log.Error().Err(err).Msg("malformed webhook request")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
