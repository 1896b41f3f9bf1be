// Package aggregator runs one fetch and normalize pipeline per source and
// collects the results in display order.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newsbrief/internal/logger"
	"github.com/deusflow/newsbrief/internal/metrics"
	"github.com/deusflow/newsbrief/internal/news"
)

// DefaultConcurrency bounds simultaneous source pipelines.
const DefaultConcurrency = 4

// Fetcher produces raw articles for one source.
type Fetcher interface {
	Fetch(ctx context.Context, src news.Source) ([]news.RawArticle, error)
}

// Status summarizes a collection.
type Status string

const (
	StatusOK = Status("ok")
	// StatusNoContent means every category came back empty and at least one failed.
	StatusNoContent = Status("no_content")
	// StatusEmptyDay means every category came back empty without errors.
	StatusEmptyDay = Status("empty_day")
)

// ErrAbandoned marks a pipeline that was still running when the run timed out.
var ErrAbandoned = errors.New("abandoned: run timeout")

// Result is one collection: exactly one CategoryResult per source, in source order.
type Result struct {
	Categories []news.CategoryResult
	Status     Status
	Duration   time.Duration
}

// Errors returns the per-category errors keyed by category.
func (r Result) Errors() map[string]error {
	errs := make(map[string]error)
	for _, c := range r.Categories {
		if c.Err != nil {
			errs[c.Category] = c.Err
		}
	}
	return errs
}

type Aggregator struct {
	fetcher      Fetcher
	limit        int
	dedupeAcross bool
	log          *slog.Logger
}

// New creates an aggregator running at most limit pipelines at once.
func New(f Fetcher, limit int, dedupeAcross bool) *Aggregator {
	if limit < 1 {
		limit = DefaultConcurrency
	}
	return &Aggregator{
		fetcher:      f,
		limit:        limit,
		dedupeAcross: dedupeAcross,
		log:          logger.With("aggregator"),
	}
}

// Collect runs every source and waits for all of them or for ctx to end.
// Pipelines still in flight when ctx ends are reported as failed; a failing
// pipeline never affects its siblings.
func (a *Aggregator) Collect(ctx context.Context, sources []news.Source) Result {
	start := time.Now()

	var (
		mu       sync.Mutex
		closed   bool
		results  = make([]news.CategoryResult, len(sources))
		finished = make([]bool, len(sources))
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(a.limit)
		for i, src := range sources {
			g.Go(func() error {
				r := a.pipeline(ctx, src)
				mu.Lock()
				defer mu.Unlock()
				if !closed {
					results[i] = r
					finished[i] = true
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	closed = true
	for i, src := range sources {
		if !finished[i] {
			a.log.Warn("⏱️ Source abandoned", "category", src.Category, "source", src.ID)
			metrics.Global.IncrementCategoryFailures()
			results[i] = news.CategoryResult{
				Category: src.Category,
				SourceID: src.ID,
				Err:      &news.FetchError{Kind: news.FetchNetwork, Source: src.ID, Err: ErrAbandoned},
			}
		}
	}
	mu.Unlock()

	if a.dedupeAcross {
		before := countArticles(results)
		results = news.DedupeAcross(results)
		if n := before - countArticles(results); n > 0 {
			metrics.Global.AddDuplicatesFiltered(n)
		}
	}

	res := Result{Categories: results, Status: status(results), Duration: time.Since(start)}
	a.log.Info("📰 Collection finished",
		"sources", len(sources),
		"articles", countArticles(results),
		"failed", len(res.Errors()),
		"status", res.Status,
		"duration", res.Duration)
	return res
}

func (a *Aggregator) pipeline(ctx context.Context, src news.Source) (r news.CategoryResult) {
	r = news.CategoryResult{Category: src.Category, SourceID: src.ID}
	defer func() {
		if p := recover(); p != nil {
			r.Articles = nil
			r.Err = fmt.Errorf("source %s: internal fault: %v", src.ID, p)
		}
		if r.Err != nil {
			metrics.Global.IncrementCategoryFailures()
			a.log.Warn("⚠️ Source failed", "category", src.Category, "source", src.ID, "error", r.Err)
		}
	}()

	if err := ctx.Err(); err != nil {
		r.Err = &news.FetchError{Kind: news.FetchNetwork, Source: src.ID, Err: ErrAbandoned}
		return r
	}

	raw, err := a.fetcher.Fetch(ctx, src)
	if err != nil {
		var fe *news.FetchError
		if !errors.As(err, &fe) {
			err = &news.FetchError{Kind: news.FetchNetwork, Source: src.ID, Err: err}
		}
		r.Err = err
		return r
	}

	r.Articles = news.Prepare(raw, src.MaxArticles)
	return r
}

func status(results []news.CategoryResult) Status {
	if len(results) == 0 {
		return StatusEmptyDay
	}
	failed := false
	for _, r := range results {
		if len(r.Articles) > 0 {
			return StatusOK
		}
		if r.Err != nil {
			failed = true
		}
	}
	if failed {
		return StatusNoContent
	}
	return StatusEmptyDay
}

func countArticles(results []news.CategoryResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Articles)
	}
	return n
}
