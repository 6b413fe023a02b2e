package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/erauner12/ledgersafe-api/internal/ledger"
	"github.com/erauner12/ledgersafe-api/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// listResp wraps the exception queue for the operator console
type listResp struct {
	Items []ledger.Exception `json:"items"`
}

// ListExceptions handles GET /v1/exceptions?status=&tenant_id=&limit=
func (s *Server) ListExceptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	tenantID := q.Get("tenant_id")
	limit := parseLimit(q.Get("limit"), 50, 500)

	items, err := ledger.ListExceptions(r.Context(), s.DB, status, tenantID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, listResp{Items: items})
}

// GetException handles GET /v1/exceptions/{exception_id}
// Returns the exception plus the raw events an operator needs to compare
// first vs. last submission in conflict cases.
func (s *Server) GetException(w http.ResponseWriter, r *http.Request) {
	exceptionID := chi.URLParam(r, "exception_id")

	detail, err := ledger.GetException(r.Context(), s.DB, exceptionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, detail)
}

// ResolveException handles POST /v1/exceptions/{exception_id}/resolve
func (s *Server) ResolveException(w http.ResponseWriter, r *http.Request) {
	exceptionID := chi.URLParam(r, "exception_id")

	// UseNumber keeps override_patch numerics as literals, so the replayed
	// payload hashes identically to a future resubmission of the same JSON.
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var req ledger.ResolveRequest
	if err := dec.Decode(&req); err != nil {
		log.Warn().Err(err).
			Str("exception_id", exceptionID).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("invalid resolve request body")
		writeJSON(w, 400, errorBody{Error: ledger.CodeInvalidJSON, Message: "request body is not valid JSON"})
		return
	}

	res, err := ledger.Resolve(r.Context(), s.DB, exceptionID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.Resolutions.WithLabelValues(req.Action).Inc()
	writeJSON(w, 200, res)
}
