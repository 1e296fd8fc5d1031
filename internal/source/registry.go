package source

import "data_pipeline/internal/domain"

// Registry is the immutable source catalog. It is built once at startup from
// configuration and injected wherever sources need resolving.
type Registry struct {
	sources []domain.DataSource
	byID    map[string]domain.DataSource
}

func NewRegistry(sources []domain.DataSource) *Registry {
	byID := make(map[string]domain.DataSource, len(sources))
	for _, src := range sources {
		byID[src.ID] = src
	}
	return &Registry{
		sources: append([]domain.DataSource(nil), sources...),
		byID:    byID,
	}
}

func (r *Registry) Get(id string) (domain.DataSource, bool) {
	src, ok := r.byID[id]
	return src, ok
}

// All returns the sources in configuration order.
func (r *Registry) All() []domain.DataSource {
	return append([]domain.DataSource(nil), r.sources...)
}
