package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Mapper Prometheus metrics.
var (
	RecordOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omhash",
			Name:      "record_operations_total",
			Help:      "Total record reads and writes by keyspace and operation",
		},
		[]string{"keyspace", "op", "status"}, // op: save/get/update/delete/search
	)

	RecordOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omhash",
			Name:      "record_operation_duration_seconds",
			Help:      "Record operation duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"keyspace", "op"},
	)

	UnresolvedReferencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omhash",
			Name:      "unresolved_references_total",
			Help:      "References left unset on read because the target could not be loaded",
		},
		[]string{"keyspace"},
	)

	IndexCreationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omhash",
			Name:      "index_creations_total",
			Help:      "Index creation attempts by outcome",
		},
		[]string{"index", "outcome"}, // created/exists/skipped/recreated/error
	)
)

var mapperOnce sync.Once

// RegisterMapperMetrics registers the mapper metrics with the default registry.
func RegisterMapperMetrics() {
	mapperOnce.Do(func() {
		prometheus.MustRegister(RecordOperationsTotal)
		prometheus.MustRegister(RecordOperationDuration)
		prometheus.MustRegister(UnresolvedReferencesTotal)
		prometheus.MustRegister(IndexCreationsTotal)
	})
}
