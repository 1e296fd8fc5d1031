package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"data_pipeline/internal/domain"
	"data_pipeline/internal/metrics"
	"data_pipeline/internal/storage"
)

// Engine processes queue messages idempotently. Redelivering a message that
// already completed is a no-op; redelivering one that failed or crashed
// mid-flight retries it from the top. Deduplication is decided by the
// curated store's fingerprint constraint, not by the order messages arrive.
type Engine struct {
	raw         RawStore
	ledger      Ledger
	curated     CuratedStore
	normalizers *Normalizers
	logger      *slog.Logger
}

func NewEngine(
	raw RawStore,
	ledger Ledger,
	curated CuratedStore,
	normalizers *Normalizers,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		raw:         raw,
		ledger:      ledger,
		curated:     curated,
		normalizers: normalizers,
		logger:      logger,
	}
}

// Process runs one message through normalization, fingerprinting and the
// dedup-aware commit.
// On failure the ledger is marked failed and the error is returned so the
// caller can leave the message for redelivery.
func (e *Engine) Process(ctx context.Context, msg domain.QueueMessage) error {
	entry, err := e.ledger.Get(ctx, msg.ID)
	if err != nil {
		return &ProcessingError{MessageID: msg.ID, Err: fmt.Errorf("ledger lookup: %w", err)}
	}
	if entry != nil && entry.Status == domain.StatusCompleted {
		// Idempotency guard: a completed message is never reprocessed,
		// however many times the queue hands it back.
		e.logger.Warn("message already processed, skipping", "message_id", msg.ID)
		return nil
	}

	if err := e.ledger.MarkProcessing(ctx, msg.ID, time.Now().UTC()); err != nil {
		return &ProcessingError{MessageID: msg.ID, Err: fmt.Errorf("mark processing: %w", err)}
	}

	env, err := e.raw.Get(ctx, msg.RawRef)
	if err != nil {
		e.recordFailure(ctx, msg.ID, err)
		return &ProcessingError{MessageID: msg.ID, Err: fmt.Errorf("fetch raw %s: %w", msg.RawRef, err)}
	}

	normalized := e.normalizers.Resolve(msg.Source)(env)
	fingerprint := Fingerprint(msg.Source, normalized)

	if err := e.commit(ctx, msg, env, normalized, fingerprint); err != nil {
		e.recordFailure(ctx, msg.ID, err)
		return &ProcessingError{MessageID: msg.ID, Err: err}
	}

	return nil
}

// Reprocess re-derives a message directly from a raw store key and runs it
// through Process. Used for manual replay, bypassing the queue.
func (e *Engine) Reprocess(ctx context.Context, rawRef string) error {
	e.logger.Info("reprocessing from raw store", "raw_ref", rawRef)

	env, err := e.raw.Get(ctx, rawRef)
	if err != nil {
		return fmt.Errorf("fetch raw %s: %w", rawRef, err)
	}

	msg := domain.QueueMessage{
		ID:            env.ID,
		Source:        env.Source,
		RawRef:        rawRef,
		IngestedAt:    env.IngestedAt,
		PayloadDigest: domain.PayloadDigest(env.Payload),
	}

	return e.Process(ctx, msg)
}

func (e *Engine) commit(
	ctx context.Context,
	msg domain.QueueMessage,
	env domain.RawEnvelope,
	normalized domain.NormalizedFields,
	fingerprint string,
) error {
	existing, err := e.curated.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		return fmt.Errorf("fingerprint lookup: %w", err)
	}
	if existing != nil {
		return e.completeDuplicate(ctx, msg.ID, fingerprint, existing.ID)
	}

	rec := &domain.CuratedRecord{
		SourceID:    msg.Source,
		OriginalID:  msg.ID,
		CapturedAt:  env.IngestedAt,
		RawRef:      msg.RawRef,
		Normalized:  normalized,
		Fingerprint: fingerprint,
		DedupStatus: domain.DedupUnique,
		ProcessedAt: time.Now().UTC(),
	}

	recordID, err := e.curated.InsertUnique(ctx, rec)
	if errors.Is(err, storage.ErrDuplicateFingerprint) {
		// Lost the insert race to a concurrent attempt; the stored record
		// wins and this message settles as a duplicate.
		winner, err := e.curated.GetByFingerprint(ctx, fingerprint)
		if err != nil {
			return fmt.Errorf("fingerprint lookup after conflict: %w", err)
		}
		if winner == nil {
			return fmt.Errorf("fingerprint %s conflicted but no record found", fingerprint)
		}
		return e.completeDuplicate(ctx, msg.ID, fingerprint, winner.ID)
	}
	if err != nil {
		return fmt.Errorf("insert curated record: %w", err)
	}

	if err := e.ledger.MarkCompleted(ctx, msg.ID, domain.DedupUnique, recordID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	metrics.RecordsCurated.WithLabelValues(string(domain.DedupUnique)).Inc()
	e.logger.Info("processed message", "message_id", msg.ID, "curated_record_id", recordID)
	return nil
}

func (e *Engine) completeDuplicate(ctx context.Context, messageID, fingerprint string, recordID int64) error {
	e.logger.Warn("duplicate content detected",
		"message_id", messageID,
		"fingerprint", fingerprint,
		"curated_record_id", recordID,
	)

	if err := e.ledger.MarkCompleted(ctx, messageID, domain.DedupDuplicate, recordID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	metrics.RecordsCurated.WithLabelValues(string(domain.DedupDuplicate)).Inc()
	return nil
}

func (e *Engine) recordFailure(ctx context.Context, messageID string, cause error) {
	if err := e.ledger.MarkFailed(ctx, messageID, cause.Error()); err != nil {
		e.logger.Error("failed to record processing failure",
			"message_id", messageID,
			"error", err,
		)
	}
}
