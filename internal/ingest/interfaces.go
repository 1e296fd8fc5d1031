package ingest

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"data_pipeline/internal/domain"
)

// Fetcher pulls one batch of raw items from a source.
type Fetcher interface {
	Fetch(ctx context.Context, src domain.DataSource) ([]domain.RawItem, error)
}

// RawStore is the write side of the raw envelope store.
type RawStore interface {
	Put(ctx context.Context, key string, env domain.RawEnvelope) error
}

// Publisher puts reference messages on the queue.
type Publisher interface {
	Publish(ctx context.Context, msg domain.QueueMessage) error
}
