package domain

import "time"

// IngestStats holds statistics about one ingest run for a source.
type IngestStats struct {
	SourceID  string
	Fetched   int
	Stored    int
	Published int
	Lost      int // raw write committed but queue publish failed
	Errors    int
	Duration  time.Duration
}
