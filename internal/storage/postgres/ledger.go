package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"data_pipeline/internal/domain"
)

// LedgerStore tracks per-message processing state. Entries are upserted,
// never deleted; a completed entry is final and cannot be demoted, which is
// what makes redelivery of an already-processed message a no-op.
type LedgerStore struct {
	db *sqlx.DB
}

func NewLedgerStore(db *sqlx.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Get returns nil without error when no entry exists for the message.
func (s *LedgerStore) Get(ctx context.Context, messageID string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	query := `
		SELECT message_id, status, started_at, completed_at, failed_at,
		       error, dedup_status, curated_record_id
		FROM processing_ledger
		WHERE message_id = $1`

	err := s.db.GetContext(ctx, &entry, query, messageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarkProcessing upserts the entry into the processing state, clearing any
// previous failure. A completed entry is left untouched.
func (s *LedgerStore) MarkProcessing(ctx context.Context, messageID string, startedAt time.Time) error {
	query := `
		INSERT INTO processing_ledger (message_id, status, started_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			error = NULL,
			failed_at = NULL,
			updated_at = now()
		WHERE processing_ledger.status <> $4`

	_, err := s.db.ExecContext(ctx, query,
		messageID, domain.StatusProcessing, startedAt, domain.StatusCompleted)
	return err
}

func (s *LedgerStore) MarkCompleted(ctx context.Context, messageID string, dedupStatus domain.DedupStatus, curatedRecordID int64) error {
	query := `
		UPDATE processing_ledger SET
			status = $2,
			completed_at = now(),
			dedup_status = $3,
			curated_record_id = $4,
			updated_at = now()
		WHERE message_id = $1`

	_, err := s.db.ExecContext(ctx, query,
		messageID, domain.StatusCompleted, dedupStatus, curatedRecordID)
	return err
}

// MarkFailed records the failure cause. A completed entry is never demoted.
func (s *LedgerStore) MarkFailed(ctx context.Context, messageID string, cause string) error {
	query := `
		UPDATE processing_ledger SET
			status = $2,
			failed_at = now(),
			error = $3,
			updated_at = now()
		WHERE message_id = $1 AND status <> $4`

	_, err := s.db.ExecContext(ctx, query,
		messageID, domain.StatusFailed, cause, domain.StatusCompleted)
	return err
}
