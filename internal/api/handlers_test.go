package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data_pipeline/internal/domain"
	"data_pipeline/internal/ingest"
	"data_pipeline/internal/rawstore"
)

type fakeTrigger struct {
	allCalled chan struct{}
	stats     *domain.IngestStats
	err       error
}

func (f *fakeTrigger) IngestAll(ctx context.Context) {
	close(f.allCalled)
}

func (f *fakeTrigger) IngestSource(ctx context.Context, sourceID string) (*domain.IngestStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

type fakeReprocessor struct {
	gotRef string
	err    error
}

func (f *fakeReprocessor) Reprocess(ctx context.Context, rawRef string) error {
	f.gotRef = rawRef
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTriggerAll_RunsAsyncAndAccepts(t *testing.T) {
	trigger := &fakeTrigger{allCalled: make(chan struct{})}
	srv := NewIngestServer(trigger, testLogger())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest/trigger", nil)
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case <-trigger.allCalled:
	case <-time.After(time.Second):
		t.Fatal("IngestAll was not invoked")
	}
}

func TestTriggerSource_ReturnsStats(t *testing.T) {
	trigger := &fakeTrigger{stats: &domain.IngestStats{
		SourceID:  "src-a",
		Fetched:   5,
		Stored:    5,
		Published: 4,
		Lost:      1,
	}}
	srv := NewIngestServer(trigger, testLogger())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest/trigger/src-a", nil)
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"source": "src-a",
		"fetched": 5,
		"stored": 5,
		"published": 4,
		"lost": 1,
		"errors": 0,
		"duration": "0s"
	}`, w.Body.String())
}

func TestTriggerSource_UnknownSourceIs404(t *testing.T) {
	trigger := &fakeTrigger{err: fmt.Errorf("%w: %q", ingest.ErrUnknownSource, "nope")}
	srv := NewIngestServer(trigger, testLogger())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest/trigger/nope", nil)
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerSource_FetchFailureIs500(t *testing.T) {
	trigger := &fakeTrigger{err: errors.New("upstream down")}
	srv := NewIngestServer(trigger, testLogger())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest/trigger/src-a", nil)
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReprocess_Succeeds(t *testing.T) {
	rp := &fakeReprocessor{}
	srv := NewProcessServer(rp, testLogger())

	body := bytes.NewBufferString(`{"raw_ref": "raw/source=a/date=2026-08-30/x"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reprocess", body)
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "raw/source=a/date=2026-08-30/x", rp.gotRef)
}

func TestReprocess_MissingRefIs400(t *testing.T) {
	srv := NewProcessServer(&fakeReprocessor{}, testLogger())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reprocess", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReprocess_UnknownRefIs404(t *testing.T) {
	rp := &fakeReprocessor{err: fmt.Errorf("fetch raw: %w", rawstore.ErrNotFound)}
	srv := NewProcessServer(rp, testLogger())

	body := bytes.NewBufferString(`{"raw_ref": "raw/nope"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reprocess", body)
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewProcessServer(&fakeReprocessor{}, testLogger())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
