// Package metrics provides Prometheus metrics for the ingestion and
// question-answering pipelines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsIngested counts finished documents.
	// Labels: status (persisted, skipped, failed)
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of documents processed by terminal status",
		},
		[]string{"status"},
	)

	// ChunksEmbedded counts chunks written to the vector store.
	ChunksEmbedded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingest",
			Name:      "chunks_embedded_total",
			Help:      "Total number of chunks embedded and persisted",
		},
	)

	// EmbeddingBatches counts embedding calls made during ingestion.
	// Labels: result (success, error)
	EmbeddingBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingest",
			Name:      "embedding_batches_total",
			Help:      "Total number of embedding batches",
		},
		[]string{"result"},
	)

	// QuestionsAnswered counts question requests.
	// Labels: result (answered, fallback, error)
	QuestionsAnswered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "qa",
			Name:      "questions_total",
			Help:      "Total number of questions by outcome",
		},
		[]string{"result"},
	)

	// StageDuration tracks pipeline stage latency.
	// Labels: stage (extract, chunk, embed, persist, retrieve, generate, record)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
)

// ObserveStage records the time elapsed since start for stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
