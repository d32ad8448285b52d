package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// StatusFunc reports live run progress for the /status endpoint
type StatusFunc func() any

// Server exposes /metrics and /status while a long run is in progress
type Server struct {
	srv *http.Server
}

// NewRouter builds the HTTP routes. /metrics is only mounted when metrics are enabled.
func NewRouter(status StatusFunc) http.Handler {
	r := chi.NewRouter()

	if h := GetMetricsHandler(); h != nil {
		r.Handle("/metrics", h)
	}

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body any = map[string]string{"status": "running"}
		if status != nil {
			body = status()
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Warn().Err(err).Msg("Failed to encode status")
		}
	})

	return r
}

// Serve starts listening on addr in the background
func Serve(addr string, status StatusFunc) *Server {
	s := &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(status),
		ReadHeaderTimeout: 5 * time.Second,
	}}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("address", addr).Msg("Metrics server failed")
		}
	}()

	log.Info().Str("address", addr).Msg("Serving /metrics and /status")
	return s
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
