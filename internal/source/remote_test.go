package source

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data_pipeline/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRemote(sources []domain.DataSource) *Remote {
	return NewRemote(RemoteConfig{
		Timeout:        2 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, sources, testLogger())
}

func TestRemote_Fetch_ArrayShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"id": 1, "title": "first", "body": "b1"}, {"id": 2, "title": "second", "body": "b2"}]`))
	}))
	defer srv.Close()

	src := domain.DataSource{ID: "jsonplaceholder", Endpoint: srv.URL, Kind: domain.SourceKindRemote}
	f := newTestRemote([]domain.DataSource{src})

	items, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].UpstreamID)
	assert.Equal(t, "first", items[0].Payload["title"])
}

func TestRemote_Fetch_DataWrapperShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"page": 1, "data": [{"id": 7, "email": "a@example.com"}]}`))
	}))
	defer srv.Close()

	src := domain.DataSource{ID: "reqres", Endpoint: srv.URL, Kind: domain.SourceKindRemote}
	f := newTestRemote([]domain.DataSource{src})

	items, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "7", items[0].UpstreamID)
}

func TestRemote_Fetch_GenericSingleObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"id": "abc", "title": "only one"}`))
	}))
	defer srv.Close()

	src := domain.DataSource{ID: "something-else", Endpoint: srv.URL, Kind: domain.SourceKindRemote}
	f := newTestRemote([]domain.DataSource{src})

	items, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "abc", items[0].UpstreamID)
}

func TestRemote_Fetch_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"id": 1}]`))
	}))
	defer srv.Close()

	src := domain.DataSource{ID: "flaky", Endpoint: srv.URL, Kind: domain.SourceKindRemote}
	f := newTestRemote([]domain.DataSource{src})

	items, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemote_Fetch_FailsAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := domain.DataSource{ID: "down", Endpoint: srv.URL, Kind: domain.SourceKindRemote}
	f := newTestRemote([]domain.DataSource{src})

	_, err := f.Fetch(context.Background(), src)
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "down", fetchErr.SourceID)
}

func TestRemote_Fetch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	src := domain.DataSource{ID: "garbled", Endpoint: srv.URL, Kind: domain.SourceKindRemote}
	f := newTestRemote([]domain.DataSource{src})

	_, err := f.Fetch(context.Background(), src)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
}

func TestSynthetic_Fetch(t *testing.T) {
	src := domain.DataSource{ID: "mock", Kind: domain.SourceKindSynthetic}
	f := NewSynthetic()

	items, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, items, 5)

	seen := make(map[string]struct{})
	for _, item := range items {
		assert.NotEmpty(t, item.UpstreamID)
		content, _ := item.Payload["content"].(string)
		_, dup := seen[content]
		assert.False(t, dup, "synthetic items must have distinct content")
		seen[content] = struct{}{}
	}

	again, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, items[0].Payload["content"], again[0].Payload["content"])
}

func TestDispatcher_RoutesByKind(t *testing.T) {
	synthetic := NewSynthetic()
	d := NewDispatcher(newTestRemote(nil), synthetic)

	items, err := d.Fetch(context.Background(), domain.DataSource{ID: "mock", Kind: domain.SourceKindSynthetic})
	require.NoError(t, err)
	assert.Len(t, items, 5)

	_, err = d.Fetch(context.Background(), domain.DataSource{ID: "odd", Kind: "carrier-pigeon"})
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
}

func TestRegistry(t *testing.T) {
	sources := []domain.DataSource{
		{ID: "a", Kind: domain.SourceKindSynthetic},
		{ID: "b", Kind: domain.SourceKindSynthetic},
	}
	r := NewRegistry(sources)

	src, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", src.ID)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	all := r.All()
	require.Len(t, all, 2)
	all[0].ID = "mutated"
	src, _ = r.Get("a")
	assert.Equal(t, "a", src.ID, "registry must not be mutable through All()")
}
