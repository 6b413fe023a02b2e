// Package metrics exposes prometheus counters for the ingest and resolution
// outcomes. Registered on the default registry; served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestTotal counts terminal ingest outcomes by result
	// (processed, duplicate, quarantined, rejected).
	IngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgersafe",
		Name:      "ingest_total",
		Help:      "Ingest submissions by terminal result.",
	}, []string{"result"})

	// ExceptionsOpened counts quarantines by reason code.
	ExceptionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgersafe",
		Name:      "exceptions_opened_total",
		Help:      "Exceptions opened by reason code.",
	}, []string{"reason"})

	// Resolutions counts operator resolutions by action.
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgersafe",
		Name:      "resolutions_total",
		Help:      "Operator resolutions by action.",
	}, []string{"action"})
)
