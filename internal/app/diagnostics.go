package app

import (
	"sync"
	"time"

	"github.com/deusflow/newsbrief/internal/delivery"
	"github.com/deusflow/newsbrief/internal/news"
	"github.com/deusflow/newsbrief/internal/storage"
)

// CategoryError is the most recent failure of one category.
type CategoryError struct {
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// DiagnosticsSnapshot is a read-only view of the latest runs.
type DiagnosticsSnapshot struct {
	LastRunID      string                   `json:"last_run_id,omitempty"`
	LastRunAt      time.Time                `json:"last_run_at"`
	DurationMS     int64                    `json:"duration_ms"`
	Result         RunResult                `json:"result,omitempty"`
	Categories     []storage.Category       `json:"categories"`
	CategoryErrors map[string]CategoryError `json:"category_errors"`
	Script         *news.Script             `json:"script,omitempty"`
	Outcomes       []delivery.Outcome       `json:"outcomes,omitempty"`
	Fatal          string                   `json:"fatal,omitempty"`
	LastSuccess    *storage.Snapshot        `json:"last_success,omitempty"`
}

// Diagnostics keeps what the last runs produced. Safe for concurrent use.
type Diagnostics struct {
	mu sync.RWMutex
	s  DiagnosticsSnapshot
}

// NewDiagnostics starts from the stored last success, if any.
func NewDiagnostics(last *storage.Snapshot) *Diagnostics {
	d := &Diagnostics{s: DiagnosticsSnapshot{CategoryErrors: make(map[string]CategoryError)}}
	if last != nil {
		script := last.Script
		d.s.LastRunID = last.RunID
		d.s.LastRunAt = last.GeneratedAt
		d.s.DurationMS = last.DurationMS
		d.s.Result = ResultDelivered
		d.s.Categories = last.Categories
		d.s.Script = &script
		d.s.Outcomes = last.Outcomes
		d.s.LastSuccess = last
		for _, c := range last.Categories {
			if c.Error != "" {
				d.s.CategoryErrors[c.Category] = CategoryError{Error: c.Error, At: last.GeneratedAt}
			}
		}
	}
	return d
}

// Snapshot returns a copy that later runs do not modify.
func (d *Diagnostics) Snapshot() DiagnosticsSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := d.s
	s.Categories = append([]storage.Category(nil), d.s.Categories...)
	s.Outcomes = append([]delivery.Outcome(nil), d.s.Outcomes...)
	s.CategoryErrors = make(map[string]CategoryError, len(d.s.CategoryErrors))
	for k, v := range d.s.CategoryErrors {
		s.CategoryErrors[k] = v
	}
	if d.s.Script != nil {
		script := *d.s.Script
		s.Script = &script
	}
	return s
}

// recordRun replaces the last-run view with r.
func (d *Diagnostics) recordRun(r *Report) {
	snap := storage.NewSnapshot(r.RunID, r.Payload, news.Script{}, r.Outcomes, r.Duration)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.s.LastRunID = r.RunID
	d.s.LastRunAt = r.StartedAt
	d.s.DurationMS = r.Duration.Milliseconds()
	d.s.Result = r.Result
	d.s.Categories = snap.Categories
	d.s.Script = r.Script
	d.s.Outcomes = r.Outcomes
	d.s.Fatal = ""
	for _, c := range snap.Categories {
		if c.Error != "" {
			d.s.CategoryErrors[c.Category] = CategoryError{Error: c.Error, At: r.StartedAt}
		}
	}
}

// recordFatal notes a run that stopped before collecting anything. The
// previous payload and script stay visible.
func (d *Diagnostics) recordFatal(r *Report, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.s.LastRunID = r.RunID
	d.s.LastRunAt = r.StartedAt
	d.s.DurationMS = r.Duration.Milliseconds()
	d.s.Result = r.Result
	d.s.Fatal = msg
}

func (d *Diagnostics) recordSuccess(s storage.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.s.LastSuccess = &s
}
