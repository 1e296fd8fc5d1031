package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"data_pipeline/internal/domain"
	"data_pipeline/internal/metrics"
	"data_pipeline/internal/rawstore"
	"data_pipeline/internal/source"
)

// Orchestrator drives the fetch, raw-store-write and queue-publish steps
// per item.
// Failures are isolated at every level: a failing item does not abort its
// batch and a failing source does not abort an ingest-all run.
type Orchestrator struct {
	registry *source.Registry
	fetcher  Fetcher
	raw      RawStore
	queue    Publisher
	logger   *slog.Logger
}

func NewOrchestrator(
	registry *source.Registry,
	fetcher Fetcher,
	raw RawStore,
	queue Publisher,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		fetcher:  fetcher,
		raw:      raw,
		queue:    queue,
		logger:   logger,
	}
}

// IngestAll runs every configured source. Per-source errors are logged and
// do not stop the remaining sources.
func (o *Orchestrator) IngestAll(ctx context.Context) {
	for _, src := range o.registry.All() {
		if _, err := o.IngestSource(ctx, src.ID); err != nil {
			o.logger.Error("source ingest failed", "source", src.ID, "error", err)
		}
	}
}

// IngestSource fetches one batch from a source and feeds each item into the
// raw store and the queue. The queue publish happens strictly after the raw
// write commits, so a published message always has a resolvable raw ref.
func (o *Orchestrator) IngestSource(ctx context.Context, sourceID string) (*domain.IngestStats, error) {
	src, ok := o.registry.Get(sourceID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}

	startTime := time.Now()
	o.logger.Info("starting ingest", "source", src.ID, "source_name", src.Name)

	items, err := o.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}

	ingestedAt := time.Now().UTC()
	ingestDate := ingestedAt.Format("2006-01-02")

	stats := &domain.IngestStats{
		SourceID: src.ID,
		Fetched:  len(items),
	}

	for _, item := range items {
		itemID := newItemID(src.ID, item)

		env := domain.RawEnvelope{
			ID:         itemID,
			Source:     src.ID,
			IngestedAt: ingestedAt,
			IngestDate: ingestDate,
			Payload:    item.Payload,
		}
		key := rawstore.Key(src.ID, ingestDate, itemID)

		if err := o.raw.Put(ctx, key, env); err != nil {
			stats.Errors++
			metrics.ItemsIngested.WithLabelValues(src.ID, "error").Inc()
			o.logger.Error("raw write failed, item skipped", "item_id", itemID, "error", err)
			continue
		}
		stats.Stored++
		metrics.ItemsIngested.WithLabelValues(src.ID, "stored").Inc()

		msg := domain.QueueMessage{
			ID:            itemID,
			Source:        src.ID,
			RawRef:        key,
			IngestedAt:    ingestedAt,
			PayloadDigest: domain.PayloadDigest(item.Payload),
		}

		if err := o.queue.Publish(ctx, msg); err != nil {
			// The raw copy is durable; the item is only lost to the queue
			// and can be replayed via manual reprocessing.
			stats.Lost++
			metrics.ItemsIngested.WithLabelValues(src.ID, "lost").Inc()
			pubErr := &PublishError{ItemID: itemID, RawRef: key, Err: err}
			o.logger.Error("item stored but not enqueued", "error", pubErr)
			continue
		}
		stats.Published++
		metrics.ItemsIngested.WithLabelValues(src.ID, "published").Inc()

		o.logger.Debug("ingested item", "item_id", itemID, "raw_ref", key)
	}

	stats.Duration = time.Since(startTime)

	o.logger.Info("ingest completed",
		"source", src.ID,
		"fetched", stats.Fetched,
		"stored", stats.Stored,
		"published", stats.Published,
		"lost", stats.Lost,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}

// newItemID builds a globally unique item id from the source, the upstream
// id when one exists, and a random disambiguator. The disambiguator keeps
// ids unique for sources whose own ids are absent or repeat.
func newItemID(sourceID string, item domain.RawItem) string {
	middle := item.UpstreamID
	if middle == "" {
		middle = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}
	return fmt.Sprintf("%s-%s-%s", sourceID, middle, uuid.NewString()[:8])
}
