package domain

import "time"

// SourceReport summarizes one source's harvest.
type SourceReport struct {
	Source         string        `json:"source"`
	Extracted      int           `json:"extracted"`
	Kept           int           `json:"kept"`
	Dropped        int           `json:"dropped"`
	ChunksSent     int           `json:"chunks_sent"`
	ChunksFailed   int           `json:"chunks_failed"`
	Duration       time.Duration `json:"duration"`
	Err            string        `json:"error,omitempty"`
	MergeSkipped   bool          `json:"merge_skipped,omitempty"`
	PartialHarvest bool          `json:"partial_harvest,omitempty"`
}

// Report is what HarvestAll hands back to the scheduler.
type Report struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceReport `json:"sources"`
}

// TotalKept returns the number of products retained across all sources.
func (r *Report) TotalKept() int {
	total := 0
	for _, s := range r.Sources {
		total += s.Kept
	}
	return total
}
