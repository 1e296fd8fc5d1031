package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsIngested counts fetched items by source and ingest outcome
	// (stored, published, lost, error).
	ItemsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_items_ingested_total",
			Help: "Items handled during ingestion by outcome",
		},
		[]string{"source", "outcome"},
	)

	// MessagesProcessed counts consumed queue messages by settle outcome
	// (completed, retried, dropped).
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_processed_total",
			Help: "Queue messages settled by the consumer by outcome",
		},
		[]string{"outcome"},
	)

	// RecordsCurated counts processed records by dedup outcome.
	RecordsCurated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_records_curated_total",
			Help: "Curated record resolutions by dedup status",
		},
		[]string{"dedup_status"},
	)
)
