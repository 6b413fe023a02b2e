package httpapi

import (
	"net/http"

	"github.com/erauner12/ledgersafe-api/internal/ledger"
	"github.com/rs/zerolog/log"
)

// Health handles GET /v1/health
// Always answers 200: a broken database reports status=degraded rather than
// failing the response, so the operator console can render the outage.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	rep, err := ledger.Health(r.Context(), s.DB)
	if err != nil {
		log.Warn().Err(err).Msg("health check degraded")
		writeJSON(w, 200, ledger.HealthReport{
			Status: "degraded",
			DB:     "error",
			Error:  err.Error(),
		})
		return
	}
	writeJSON(w, 200, rep)
}
