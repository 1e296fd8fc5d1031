package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"data_pipeline/internal/domain"
	"data_pipeline/internal/storage"
)

// CuratedStore persists deduplicated canonical records. Records are
// append-only; the unique constraint on fingerprint is the dedup
// enforcement point.
type CuratedStore struct {
	db *sqlx.DB
}

func NewCuratedStore(db *sqlx.DB) *CuratedStore {
	return &CuratedStore{db: db}
}

// curatedRow is the flat database shape of a curated record.
type curatedRow struct {
	ID          int64              `db:"id"`
	SourceID    string             `db:"source_id"`
	OriginalID  string             `db:"original_id"`
	CapturedAt  time.Time          `db:"captured_at"`
	RawRef      string             `db:"raw_ref"`
	Title       string             `db:"title"`
	Content     string             `db:"content"`
	Author      string             `db:"author"`
	Metadata    []byte             `db:"metadata"`
	Fingerprint string             `db:"fingerprint"`
	DedupStatus domain.DedupStatus `db:"dedup_status"`
	ProcessedAt time.Time          `db:"processed_at"`
}

var curatedColumns = []string{
	"id", "source_id", "original_id", "captured_at", "raw_ref",
	"title", "content", "author", "metadata",
	"fingerprint", "dedup_status", "processed_at",
}

func (r curatedRow) toDomain() (domain.CuratedRecord, error) {
	metadata := map[string]string{}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &metadata); err != nil {
			return domain.CuratedRecord{}, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return domain.CuratedRecord{
		ID:         r.ID,
		SourceID:   r.SourceID,
		OriginalID: r.OriginalID,
		CapturedAt: r.CapturedAt,
		RawRef:     r.RawRef,
		Normalized: domain.NormalizedFields{
			Title:    r.Title,
			Content:  r.Content,
			Author:   r.Author,
			Metadata: metadata,
		},
		Fingerprint: r.Fingerprint,
		DedupStatus: r.DedupStatus,
		ProcessedAt: r.ProcessedAt,
	}, nil
}

// InsertUnique inserts a record unless its fingerprint already exists, in
// which case it returns ErrDuplicateFingerprint without touching the
// existing record. The conditional insert closes the concurrent
// check-then-insert race.
func (s *CuratedStore) InsertUnique(ctx context.Context, rec *domain.CuratedRecord) (int64, error) {
	metadata, err := json.Marshal(rec.Normalized.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}

	query := `
		INSERT INTO curated_records (
			source_id, original_id, captured_at, raw_ref,
			title, content, author, metadata,
			fingerprint, dedup_status, processed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING id`

	var id int64
	err = s.db.QueryRowContext(ctx, query,
		rec.SourceID,
		rec.OriginalID,
		rec.CapturedAt,
		rec.RawRef,
		rec.Normalized.Title,
		rec.Normalized.Content,
		rec.Normalized.Author,
		metadata,
		rec.Fingerprint,
		rec.DedupStatus,
		rec.ProcessedAt,
	).Scan(&id)

	if err == sql.ErrNoRows {
		return 0, storage.ErrDuplicateFingerprint
	}
	if err != nil {
		return 0, err
	}

	return id, nil
}

// GetByFingerprint returns nil without error when no record matches.
func (s *CuratedStore) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.CuratedRecord, error) {
	return s.getOne(ctx, sq.Eq{"fingerprint": fingerprint})
}

func (s *CuratedStore) GetByID(ctx context.Context, id int64) (*domain.CuratedRecord, error) {
	return s.getOne(ctx, sq.Eq{"id": id})
}

func (s *CuratedStore) getOne(ctx context.Context, pred any) (*domain.CuratedRecord, error) {
	query, args, err := sq.Select(curatedColumns...).
		From("curated_records").
		Where(pred).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row curatedRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CuratedFilter narrows List results. Zero values leave a dimension
// unfiltered.
type CuratedFilter struct {
	SourceID string
	From     time.Time
	To       time.Time
	Limit    uint64
}

// List returns records ordered by capture time, newest first. Consumed by
// the reporting layer, which lives outside this service.
func (s *CuratedStore) List(ctx context.Context, filter CuratedFilter) ([]domain.CuratedRecord, error) {
	qb := sq.Select(curatedColumns...).
		From("curated_records").
		OrderBy("captured_at DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.SourceID != "" {
		qb = qb.Where(sq.Eq{"source_id": filter.SourceID})
	}
	if !filter.From.IsZero() {
		qb = qb.Where(sq.GtOrEq{"captured_at": filter.From})
	}
	if !filter.To.IsZero() {
		qb = qb.Where(sq.LtOrEq{"captured_at": filter.To})
	}
	if filter.Limit > 0 {
		qb = qb.Limit(filter.Limit)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []curatedRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	records := make([]domain.CuratedRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}
