package process

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"data_pipeline/internal/domain"
)

// RawStore is the read side of the raw envelope store.
type RawStore interface {
	Get(ctx context.Context, key string) (domain.RawEnvelope, error)
}

// Ledger tracks per-message processing state. Get returns nil without error
// when no entry exists.
type Ledger interface {
	Get(ctx context.Context, messageID string) (*domain.LedgerEntry, error)
	MarkProcessing(ctx context.Context, messageID string, startedAt time.Time) error
	MarkCompleted(ctx context.Context, messageID string, dedupStatus domain.DedupStatus, curatedRecordID int64) error
	MarkFailed(ctx context.Context, messageID string, cause string) error
}

// CuratedStore holds deduplicated canonical records. InsertUnique must
// enforce fingerprint uniqueness at the storage level and return
// storage.ErrDuplicateFingerprint on conflict. GetByFingerprint returns nil
// without error when no record matches.
type CuratedStore interface {
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.CuratedRecord, error)
	InsertUnique(ctx context.Context, rec *domain.CuratedRecord) (int64, error)
}
