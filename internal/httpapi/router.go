package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/erauner12/ledgersafe-api/internal/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server holds dependencies for HTTP handlers
type Server struct {
	DB *pgxpool.Pool
}

// errorBody is the structured error response for all non-2xx outcomes
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError maps a ledger error to its wire code and status; anything
// untyped is an infrastructure failure and surfaces as 500.
func writeError(w http.ResponseWriter, err error) {
	var le *ledger.Error
	if errors.As(err, &le) {
		writeJSON(w, le.HTTPStatus, errorBody{Error: le.Code, Message: le.Message})
		return
	}
	log.Error().Err(err).Msg("internal error")
	writeJSON(w, 500, errorBody{Error: "INTERNAL_ERROR"})
}

// parseLimit parses a limit query param with default and max
func parseLimit(q string, def, max int) int {
	if q == "" {
		return def
	}
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Routes creates the HTTP router with the ingest and exception endpoints
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorrelationMiddleware)

	r.Get("/v1/health", s.Health)

	r.Post("/v1/events", s.IngestEvent)

	r.Get("/v1/exceptions", s.ListExceptions)
	r.Get("/v1/exceptions/{exception_id}", s.GetException)
	r.Post("/v1/exceptions/{exception_id}/resolve", s.ResolveException)

	r.Handle("/metrics", promhttp.Handler())

	log.Info().Msg("HTTP routes registered")
	return r
}
