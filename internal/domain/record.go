package domain

import "time"

// ProcessingStatus is the state of one ledger entry.
type ProcessingStatus string

const (
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// DedupStatus records whether processing found the message's content to be
// new or a repeat of an existing curated record.
type DedupStatus string

const (
	DedupUnique    DedupStatus = "unique"
	DedupDuplicate DedupStatus = "duplicate"
)

// LedgerEntry tracks per-message processing state. There is at most one
// entry per message id; entries are upserted and never deleted, which is
// what makes redelivery safe to observe.
type LedgerEntry struct {
	MessageID       string           `db:"message_id"`
	Status          ProcessingStatus `db:"status"`
	StartedAt       time.Time        `db:"started_at"`
	CompletedAt     *time.Time       `db:"completed_at"`
	FailedAt        *time.Time       `db:"failed_at"`
	Error           *string          `db:"error"`
	DedupStatus     *DedupStatus     `db:"dedup_status"`
	CuratedRecordID *int64           `db:"curated_record_id"`
}

// NormalizedFields is the uniform shape every source payload is mapped into
// before fingerprinting.
type NormalizedFields struct {
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Author   string            `json:"author"`
	Metadata map[string]string `json:"metadata"`
}

// CuratedRecord is a deduplicated canonical record. Fingerprint is unique
// across all records; a record is created once per unique fingerprint and
// never mutated afterwards.
type CuratedRecord struct {
	ID          int64
	SourceID    string
	OriginalID  string
	CapturedAt  time.Time
	RawRef      string
	Normalized  NormalizedFields
	Fingerprint string
	DedupStatus DedupStatus
	ProcessedAt time.Time
}
