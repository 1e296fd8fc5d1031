package source

import (
	"context"
	"fmt"
	"time"

	"data_pipeline/internal/domain"
)

const syntheticBatchSize = 5

// Synthetic produces a small deterministic batch for sources with no live
// backend. Item content is stable across runs so re-ingesting a synthetic
// source exercises the dedup path downstream.
type Synthetic struct{}

func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

func (f *Synthetic) Fetch(_ context.Context, src domain.DataSource) ([]domain.RawItem, error) {
	items := make([]domain.RawItem, 0, syntheticBatchSize)
	for i := 1; i <= syntheticBatchSize; i++ {
		id := fmt.Sprintf("%s-%d", src.ID, i)
		items = append(items, domain.RawItem{
			UpstreamID: id,
			Payload: map[string]any{
				"id":        id,
				"title":     fmt.Sprintf("Sample Item %d", i),
				"content":   fmt.Sprintf("Synthetic data item number %d", i),
				"createdAt": time.Now().UTC().Format(time.RFC3339),
			},
		})
	}
	return items, nil
}
