package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion pipeline Prometheus metrics.
var (
	IngestAcceptedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kgraph",
			Name:      "ingest_accepted_total",
			Help:      "Total number of accepted ingestion requests",
		},
		[]string{"result"}, // "queued" / "duplicate"
	)

	IngestProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kgraph",
			Name:      "ingest_processed_total",
			Help:      "Total number of background extraction runs",
		},
		[]string{"status"}, // "ok" / "error"
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kgraph",
			Name:      "ingest_duration_seconds",
			Help:      "Background extraction duration per document in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	IngestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kgraph",
			Name:      "ingest_queue_depth",
			Help:      "Documents waiting for background extraction",
		},
	)

	GraphEntitiesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kgraph",
			Name:      "graph_entities_total",
			Help:      "Entities currently in the knowledge graph",
		},
	)

	GraphRelationshipsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kgraph",
			Name:      "graph_relationships_total",
			Help:      "Relationships currently in the knowledge graph",
		},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kgraph",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)
)

var ingestMetricsRegistered bool

// RegisterIngestMetrics registers Prometheus ingestion and query metrics.
// Must be called once from main.
func RegisterIngestMetrics() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestAcceptedTotal)
	prometheus.MustRegister(IngestProcessedTotal)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(IngestQueueDepth)
	prometheus.MustRegister(GraphEntitiesTotal)
	prometheus.MustRegister(GraphRelationshipsTotal)
	prometheus.MustRegister(QueryDuration)
	ingestMetricsRegistered = true
}
