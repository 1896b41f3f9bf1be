// Package news holds the briefing data model and the article normalizer.
package news

import (
	"errors"
	"fmt"
	"time"
)

// Mode is how a source is fetched.
type Mode string

const (
	ModeFeed  Mode = "feed"
	ModeQuery Mode = "query"
)

// Source describes where one category's articles come from.
type Source struct {
	ID          string
	Category    string
	Mode        Mode
	URL         string // feed URL in ModeFeed
	Query       string // search terms in ModeQuery
	MaxArticles int
}

func (s Source) String() string {
	if s.Mode == ModeQuery {
		return fmt.Sprintf("%s (query %q)", s.Category, s.Query)
	}
	return fmt.Sprintf("%s (%s)", s.Category, s.URL)
}

// RawArticle is an article as the feed client produced it.
type RawArticle struct {
	Title     string
	Summary   string // may contain HTML
	Link      string
	Published *time.Time
}

// CleanArticle is a normalized article; Body carries no markup and no
// whitespace runs.
type CleanArticle struct {
	Title string `json:"title"`
	Body  string `json:"summary"`
	Link  string `json:"link,omitempty"`
}

// CategoryResult is the outcome of one source pipeline in a run.
type CategoryResult struct {
	Category string
	SourceID string
	Articles []CleanArticle
	Err      error
}

// Failed reports whether the pipeline for this category failed.
func (r CategoryResult) Failed() bool {
	return r.Err != nil
}

// Bucket is the local time-of-day slot used to pick a greeting.
type Bucket string

const (
	Morning   Bucket = "morning"
	Afternoon Bucket = "afternoon"
	Night     Bucket = "night"
)

// BucketFor maps a local time to its greeting bucket.
func BucketFor(t time.Time) Bucket {
	h := t.Hour()
	switch {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 18:
		return Afternoon
	default:
		return Night
	}
}

// Payload is everything one run collected for composition.
type Payload struct {
	Categories  []CategoryResult
	GeneratedAt time.Time
	Bucket      Bucket
}

// NewPayload stamps results with the generation time and bucket.
func NewPayload(results []CategoryResult, now time.Time) Payload {
	return Payload{
		Categories:  results,
		GeneratedAt: now,
		Bucket:      BucketFor(now),
	}
}

// ArticleCount returns the number of articles across all categories.
func (p Payload) ArticleCount() int {
	n := 0
	for _, c := range p.Categories {
		n += len(c.Articles)
	}
	return n
}

// ScriptSource tells how a script was authored.
type ScriptSource string

const (
	SourceAI       ScriptSource = "ai"
	SourceTemplate ScriptSource = "fallback-template"
)

// Script is the finished briefing text.
type Script struct {
	Body    string       `json:"body"`
	Source  ScriptSource `json:"source"`
	Backend string       `json:"backend,omitempty"`
}

// FetchKind classifies feed client failures.
type FetchKind string

const (
	FetchNetwork FetchKind = "network"
	FetchParse   FetchKind = "parse"
	FetchEmpty   FetchKind = "empty"
)

// FetchError is returned when a whole source could not be fetched.
type FetchError struct {
	Kind   FetchKind
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchErrorKind returns the kind of a FetchError in err's chain, or "".
func FetchErrorKind(err error) FetchKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
