package source

import (
	"context"
	"fmt"

	"data_pipeline/internal/domain"
)

// Fetcher pulls one batch of raw items from a source.
type Fetcher interface {
	Fetch(ctx context.Context, src domain.DataSource) ([]domain.RawItem, error)
}

// FetchError marks a failure to pull items from a source. The orchestrator
// treats it as a per-source failure, not fatal to the run.
type FetchError struct {
	SourceID string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch source %s: %v", e.SourceID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Dispatcher routes Fetch calls to the variant matching the source kind.
type Dispatcher struct {
	remote    Fetcher
	synthetic Fetcher
}

func NewDispatcher(remote, synthetic Fetcher) *Dispatcher {
	return &Dispatcher{remote: remote, synthetic: synthetic}
}

func (d *Dispatcher) Fetch(ctx context.Context, src domain.DataSource) ([]domain.RawItem, error) {
	switch src.Kind {
	case domain.SourceKindRemote:
		return d.remote.Fetch(ctx, src)
	case domain.SourceKindSynthetic:
		return d.synthetic.Fetch(ctx, src)
	default:
		return nil, &FetchError{SourceID: src.ID, Err: fmt.Errorf("unknown source kind %q", src.Kind)}
	}
}
