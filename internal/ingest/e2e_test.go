package ingest_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"data_pipeline/internal/domain"
	"data_pipeline/internal/ingest"
	"data_pipeline/internal/process"
	"data_pipeline/internal/rawstore"
	"data_pipeline/internal/source"
	"data_pipeline/internal/storage"
)

// In-memory stand-ins for the raw store, queue and database, so the full
// ingest-to-curated path runs without external services.

type memRawStore struct {
	mu   sync.Mutex
	objs map[string]domain.RawEnvelope
}

func newMemRawStore() *memRawStore {
	return &memRawStore{objs: make(map[string]domain.RawEnvelope)}
}

func (m *memRawStore) Put(_ context.Context, key string, env domain.RawEnvelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[key] = env
	return nil
}

func (m *memRawStore) Get(_ context.Context, key string) (domain.RawEnvelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	env, ok := m.objs[key]
	if !ok {
		return domain.RawEnvelope{}, rawstore.ErrNotFound
	}
	return env, nil
}

type memQueue struct {
	mu       sync.Mutex
	messages []domain.QueueMessage
}

func (m *memQueue) Publish(_ context.Context, msg domain.QueueMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memQueue) drain() []domain.QueueMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.messages
	m.messages = nil
	return out
}

type memLedger struct {
	mu      sync.Mutex
	entries map[string]*domain.LedgerEntry
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[string]*domain.LedgerEntry)}
}

func (m *memLedger) Get(_ context.Context, messageID string) (*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[messageID]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (m *memLedger) MarkProcessing(_ context.Context, messageID string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[messageID]; ok && e.Status == domain.StatusCompleted {
		return nil
	}
	m.entries[messageID] = &domain.LedgerEntry{
		MessageID: messageID,
		Status:    domain.StatusProcessing,
		StartedAt: startedAt,
	}
	return nil
}

func (m *memLedger) MarkCompleted(_ context.Context, messageID string, dedupStatus domain.DedupStatus, curatedRecordID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[messageID]
	e.Status = domain.StatusCompleted
	e.DedupStatus = &dedupStatus
	e.CuratedRecordID = &curatedRecordID
	return nil
}

func (m *memLedger) MarkFailed(_ context.Context, messageID, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[messageID]
	e.Status = domain.StatusFailed
	e.Error = &cause
	return nil
}

type memCuratedStore struct {
	mu     sync.Mutex
	byFP   map[string]*domain.CuratedRecord
	nextID int64
}

func newMemCuratedStore() *memCuratedStore {
	return &memCuratedStore{byFP: make(map[string]*domain.CuratedRecord)}
}

func (m *memCuratedStore) GetByFingerprint(_ context.Context, fingerprint string) (*domain.CuratedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byFP[fingerprint]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memCuratedStore) InsertUnique(_ context.Context, rec *domain.CuratedRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byFP[rec.Fingerprint]; exists {
		return 0, storage.ErrDuplicateFingerprint
	}
	m.nextID++
	cp := *rec
	cp.ID = m.nextID
	m.byFP[rec.Fingerprint] = &cp
	return cp.ID, nil
}

func (m *memCuratedStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byFP)
}

type PipelineTestSuite struct {
	suite.Suite

	raw     *memRawStore
	queue   *memQueue
	ledger  *memLedger
	curated *memCuratedStore

	orchestrator *ingest.Orchestrator
	engine       *process.Engine
}

func (s *PipelineTestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.raw = newMemRawStore()
	s.queue = &memQueue{}
	s.ledger = newMemLedger()
	s.curated = newMemCuratedStore()

	registry := source.NewRegistry([]domain.DataSource{
		{ID: "mock", Name: "Synthetic", Kind: domain.SourceKindSynthetic},
	})

	s.orchestrator = ingest.NewOrchestrator(registry, source.NewSynthetic(), s.raw, s.queue, logger)
	s.engine = process.NewEngine(s.raw, s.ledger, s.curated, process.NewNormalizers(), logger)
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func (s *PipelineTestSuite) processAll(msgs []domain.QueueMessage) {
	for _, msg := range msgs {
		s.Require().NoError(s.engine.Process(context.Background(), msg))
	}
}

func (s *PipelineTestSuite) TestIngestThenProcessCuratesEveryItem() {
	ctx := context.Background()

	stats, err := s.orchestrator.IngestSource(ctx, "mock")
	s.Require().NoError(err)
	s.Equal(5, stats.Published)

	msgs := s.queue.drain()
	s.Require().Len(msgs, 5)
	s.processAll(msgs)

	s.Equal(5, s.curated.count())
	for _, msg := range msgs {
		entry, err := s.ledger.Get(ctx, msg.ID)
		s.Require().NoError(err)
		s.Require().NotNil(entry)
		s.Equal(domain.StatusCompleted, entry.Status)
		s.Equal(domain.DedupUnique, *entry.DedupStatus)
	}
}

func (s *PipelineTestSuite) TestReingestSettlesAsDuplicatesWithoutNewRecords() {
	ctx := context.Background()

	_, err := s.orchestrator.IngestSource(ctx, "mock")
	s.Require().NoError(err)
	s.processAll(s.queue.drain())
	s.Require().Equal(5, s.curated.count())

	// Same content comes in again under fresh item ids.
	_, err = s.orchestrator.IngestSource(ctx, "mock")
	s.Require().NoError(err)
	msgs := s.queue.drain()
	s.Require().Len(msgs, 5)
	s.processAll(msgs)

	s.Equal(5, s.curated.count(), "re-ingested content must not create records")
	for _, msg := range msgs {
		entry, err := s.ledger.Get(ctx, msg.ID)
		s.Require().NoError(err)
		s.Equal(domain.DedupDuplicate, *entry.DedupStatus)
	}
}

func (s *PipelineTestSuite) TestRedeliveredMessageProcessesOnce() {
	ctx := context.Background()

	_, err := s.orchestrator.IngestSource(ctx, "mock")
	s.Require().NoError(err)
	msgs := s.queue.drain()

	s.processAll(msgs)
	// Redeliver the whole batch.
	s.processAll(msgs)

	s.Equal(5, s.curated.count())
	for _, msg := range msgs {
		entry, err := s.ledger.Get(ctx, msg.ID)
		s.Require().NoError(err)
		s.Equal(domain.DedupUnique, *entry.DedupStatus, "second delivery must not rewrite the ledger")
	}
}

func (s *PipelineTestSuite) TestReprocessRecoversItemLostAfterRawWrite() {
	ctx := context.Background()

	_, err := s.orchestrator.IngestSource(ctx, "mock")
	s.Require().NoError(err)
	msgs := s.queue.drain()

	// Pretend the first message never reached the queue; replay it from the
	// raw store instead.
	lost := msgs[0]
	s.processAll(msgs[1:])
	s.Require().Equal(4, s.curated.count())

	s.Require().NoError(s.engine.Reprocess(ctx, lost.RawRef))

	s.Equal(5, s.curated.count())
	entry, err := s.ledger.Get(ctx, lost.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, entry.Status)
}
