// Package storage keeps the snapshot of the last successful briefing run so
// it survives restarts. Only the latest snapshot is kept.
package storage

import (
	"context"
	"time"

	"github.com/deusflow/newsbrief/internal/delivery"
	"github.com/deusflow/newsbrief/internal/news"
)

// Category is one category of a stored run. Errors are kept as text.
type Category struct {
	Category string              `json:"category"`
	SourceID string              `json:"source_id"`
	Articles []news.CleanArticle `json:"articles"`
	Error    string              `json:"error,omitempty"`
}

// Snapshot is everything diagnostics show about a successful run.
type Snapshot struct {
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Bucket      news.Bucket        `json:"bucket"`
	Categories  []Category         `json:"categories"`
	Script      news.Script        `json:"script"`
	Outcomes    []delivery.Outcome `json:"outcomes"`
	DurationMS  int64              `json:"duration_ms"`
}

// NewSnapshot flattens a run into its stored form.
func NewSnapshot(runID string, p news.Payload, s news.Script, outcomes []delivery.Outcome, d time.Duration) Snapshot {
	cats := make([]Category, len(p.Categories))
	for i, c := range p.Categories {
		cats[i] = Category{Category: c.Category, SourceID: c.SourceID, Articles: c.Articles}
		if c.Err != nil {
			cats[i].Error = c.Err.Error()
		}
	}
	return Snapshot{
		RunID:       runID,
		GeneratedAt: p.GeneratedAt,
		Bucket:      p.Bucket,
		Categories:  cats,
		Script:      s,
		Outcomes:    outcomes,
		DurationMS:  d.Milliseconds(),
	}
}

// Store persists the last successful snapshot. Save overwrites.
type Store interface {
	SaveLastSuccess(ctx context.Context, s Snapshot) error
	// LoadLastSuccess returns nil and no error when nothing was saved yet.
	LoadLastSuccess(ctx context.Context) (*Snapshot, error)
	Close() error
}
