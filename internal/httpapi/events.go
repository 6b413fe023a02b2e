package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/erauner12/ledgersafe-api/internal/ledger"
	"github.com/erauner12/ledgersafe-api/internal/metrics"
	"github.com/rs/zerolog/log"
)

// IngestEvent handles POST /v1/events
// 201 processed / 200 duplicate / 202 quarantined / 400 validation.
// The response body always carries the same shape so producers can log it
// uniformly across outcomes.
func (s *Server) IngestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		log.Warn().Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("failed to read request body")
		writeJSON(w, 400, errorBody{Error: ledger.CodeInvalidJSON, Message: "unreadable request body"})
		return
	}

	res, err := ledger.Ingest(r.Context(), s.DB, body)
	if err != nil {
		// Producer rejections (4xx) and infrastructure failures count
		// separately
		label := "error"
		var le *ledger.Error
		if errors.As(err, &le) {
			label = "rejected"
		}
		metrics.IngestTotal.WithLabelValues(label).Inc()
		writeError(w, err)
		return
	}

	metrics.IngestTotal.WithLabelValues(res.Result).Inc()
	if res.ReasonCode != nil && res.ExceptionID != nil && *res.ReasonCode != ledger.ReasonAlreadyQuarantined {
		metrics.ExceptionsOpened.WithLabelValues(*res.ReasonCode).Inc()
	}

	writeJSON(w, res.HTTPStatus, res)
}
