// Package script turns a briefing payload into the text that gets read out.
// An AI backend writes it when one is configured and behaves; otherwise a
// deterministic template does.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/deusflow/newsbrief/internal/backend"
	"github.com/deusflow/newsbrief/internal/logger"
	"github.com/deusflow/newsbrief/internal/metrics"
	"github.com/deusflow/newsbrief/internal/news"
	"github.com/deusflow/newsbrief/internal/retry"
)

// ErrNothingToBrief is returned for a payload without a single article.
var ErrNothingToBrief = errors.New("nothing to brief")

// ErrInvalidScript is wrapped by every Validate failure.
var ErrInvalidScript = errors.New("invalid script")

const (
	categoryIntro = "In the world of %s,"
	Transition    = "Next up,"

	fallbackBodyRunes = 320
	tokensPerArticle  = 160
)

// Greeting returns the fixed greeting for a time-of-day bucket.
func Greeting(b news.Bucket) string {
	return "Good " + string(b) + ","
}

// CategoryIntro returns the phrase that opens a category.
func CategoryIntro(category string) string {
	return fmt.Sprintf(categoryIntro, category)
}

type Composer struct {
	backend   backend.Backend
	maxTokens int
	retry     retry.RetryConfig
	log       *slog.Logger
}

// NewComposer creates a composer. b may be nil, in which case every script
// comes from the template. maxTokens <= 0 sizes the hint from the payload.
func NewComposer(b backend.Backend, maxTokens int) *Composer {
	return &Composer{
		backend:   b,
		maxTokens: maxTokens,
		retry:     retry.RetryConfig{MaxAttempts: 2, Delay: 500 * time.Millisecond},
		log:       logger.With("script"),
	}
}

// BackendName reports the selected backend, or "" for template-only.
func (c *Composer) BackendName() string {
	if c.backend == nil {
		return ""
	}
	return c.backend.Name()
}

// Compose writes the script for p. It returns ErrNothingToBrief when p has
// no articles and otherwise always returns a valid script.
func (c *Composer) Compose(ctx context.Context, p news.Payload) (news.Script, error) {
	count := p.ArticleCount()
	if count == 0 {
		return news.Script{}, ErrNothingToBrief
	}
	if c.backend == nil {
		metrics.Global.IncrementFallbackScripts()
		return Fallback(p), nil
	}

	maxTokens := c.maxTokens
	if maxTokens <= 0 {
		maxTokens = tokensPerArticle*count + 100
	}
	greeting := Greeting(p.Bucket)

	var body string
	err := retry.WithRetry(ctx, c.retry, func(attempt int) error {
		text, err := c.backend.Generate(ctx, BuildPrompt(p, attempt > 1), maxTokens)
		if err != nil {
			if backend.KindOf(err) != backend.InvalidResponse {
				return retry.Permanent(err)
			}
			c.log.Warn("⚠️ Backend returned unusable output", "backend", c.backend.Name(), "attempt", attempt, "error", err)
			return err
		}
		repaired := Repair(text)
		if err := Validate(repaired, greeting); err != nil {
			c.log.Warn("⚠️ Script rejected", "backend", c.backend.Name(), "attempt", attempt, "error", err)
			return err
		}
		body = repaired
		return nil
	})
	if err != nil {
		c.log.Warn("🔁 Using fallback template", "backend", c.backend.Name(), "error", err)
		metrics.Global.IncrementFallbackScripts()
		return Fallback(p), nil
	}

	metrics.Global.IncrementAIScripts()
	c.log.Info("🤖 Script written", "backend", c.backend.Name(), "chars", len(body))
	return news.Script{Body: body, Source: news.SourceAI, Backend: c.backend.Name()}, nil
}

type promptArticle struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

type promptCategory struct {
	Category string          `json:"category"`
	Articles []promptArticle `json:"articles"`
}

// BuildPrompt renders the payload and the format rules. restate adds a
// reminder used after a rejected answer.
func BuildPrompt(p news.Payload, restate bool) string {
	var cats []promptCategory
	perCategory := 0
	for _, c := range p.Categories {
		if len(c.Articles) == 0 {
			continue
		}
		pc := promptCategory{Category: c.Category}
		for _, a := range c.Articles {
			pc.Articles = append(pc.Articles, promptArticle{Title: a.Title, Summary: a.Body})
		}
		cats = append(cats, pc)
		perCategory = max(perCategory, len(c.Articles))
	}
	data, err := json.MarshalIndent(cats, "", "  ")
	if err != nil {
		// only plain strings go in; this cannot fail
		data = []byte("[]")
	}

	greeting := Greeting(p.Bucket)
	var sb strings.Builder
	if restate {
		fmt.Fprintf(&sb, "Your previous answer did not follow the format rules. Follow every rule below exactly and start with '%s'.\n\n", greeting)
	}
	fmt.Fprintf(&sb, `You are an expert broadcast writer. Use ONLY the following JSON of fresh news items to write a single spoken news script.

JSON: %s

Rules:

- Greet: '%s'

- For each category in order, if it has at least 1 article, say: '%s'

  then for each article (max %d per category) write one concise paragraph:

  first a 5-12 word title-style summary, then a one-paragraph summary using only the provided text.

- Between articles say exactly: '%s'

- Keep each article summary to one short paragraph. No bullets. No links. No sources. No markdown.

- Do not invent facts. If a category has no articles, skip it.

- Output plain text only.`, data, greeting, CategoryIntro("<Category>"), perCategory, Transition)
	return sb.String()
}

var (
	bulletPattern   = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	emphasisPattern = regexp.MustCompile(`(\*{1,3}|_{2,3})([^*_\n]+?)(\*{1,3}|_{2,3})`)
	blankRuns       = regexp.MustCompile(`\n{3,}`)

	tagPattern     = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(\s[^<>]*)?/?>`)
	urlPattern     = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	mdLinkPattern  = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)
	headingPattern = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s`)
)

// Repair removes formatting that models add even when told not to: emphasis
// markers, list bullets and runs of blank lines.
func Repair(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = bulletPattern.ReplaceAllString(line, "")
		line = emphasisPattern.ReplaceAllString(line, "$2")
		line = strings.ReplaceAll(line, "`", "")
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Validate checks a script against the output rules.
func Validate(text, greeting string) error {
	switch {
	case strings.TrimSpace(text) == "":
		return fmt.Errorf("%w: empty", ErrInvalidScript)
	case !strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSuffix(greeting, ","))):
		return fmt.Errorf("%w: missing greeting %q", ErrInvalidScript, greeting)
	case tagPattern.MatchString(text):
		return fmt.Errorf("%w: contains markup", ErrInvalidScript)
	case mdLinkPattern.MatchString(text):
		return fmt.Errorf("%w: contains link syntax", ErrInvalidScript)
	case urlPattern.MatchString(text):
		return fmt.Errorf("%w: contains a URL", ErrInvalidScript)
	case headingPattern.MatchString(text):
		return fmt.Errorf("%w: contains a heading", ErrInvalidScript)
	}
	return nil
}

// Fallback builds the script from the payload alone: greeting, category
// framing and transitions, with each article's title and a shortened body.
func Fallback(p news.Payload) news.Script {
	paragraphs := []string{Greeting(p.Bucket)}
	for _, c := range p.Categories {
		for i, a := range c.Articles {
			lead := Transition
			if i == 0 {
				lead = CategoryIntro(c.Category)
			}
			paragraphs = append(paragraphs, lead+" "+articleText(a))
		}
	}
	return news.Script{Body: strings.Join(paragraphs, "\n\n"), Source: news.SourceTemplate}
}

func articleText(a news.CleanArticle) string {
	title := plain(a.Title)
	if title != "" && !strings.ContainsAny(title[len(title)-1:], ".!?") {
		title += "."
	}
	body := plain(news.CleanText(a.Body, fallbackBodyRunes))
	if body == "" || strings.EqualFold(strings.TrimRight(body, ".!?… "), strings.TrimRight(title, ".!? ")) {
		return title
	}
	return strings.TrimSpace(title + " " + body)
}

// plain removes anything in article text that the validator would reject.
func plain(s string) string {
	s = urlPattern.ReplaceAllString(s, "")
	s = mdLinkPattern.ReplaceAllString(s, "")
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, "# ")
	return strings.Join(strings.Fields(s), " ")
}
