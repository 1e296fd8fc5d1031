package domain

// SourceKind tells the fetcher how items for a source are obtained.
type SourceKind string

const (
	// SourceKindRemote sources are pulled with an HTTP call to Endpoint.
	SourceKindRemote SourceKind = "remote"
	// SourceKindSynthetic sources are backed by a deterministic generator.
	SourceKindSynthetic SourceKind = "synthetic"
)

// DataSource describes one upstream data source. The catalog is loaded at
// startup and never mutated afterwards.
type DataSource struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Endpoint  string     `yaml:"endpoint"`
	Kind      SourceKind `yaml:"kind"`
	RateLimit int        `yaml:"rate_limit"` // requests per minute, 0 means unlimited
}
