package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/deusflow/newsbrief/internal/cache"
	"github.com/deusflow/newsbrief/internal/logger"
	"github.com/deusflow/newsbrief/internal/metrics"
)

// UserAgent is sent with page fetches; some publishers block generic clients.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

const (
	minContentChars = 100
	maxContentChars = 1800
	cacheTTL        = 6 * time.Hour
)

// ArticleContent is full article content
type ArticleContent struct {
	Title   string
	Content string
	URL     string
}

// ExtractionError is a failed content extraction for a single page. It is
// never fatal for the source the page belongs to.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor downloads pages and pulls the article text out of them.
type Extractor struct {
	client *http.Client
	cache  *cache.Cache
}

// New creates an extractor. c may be nil to disable memoization.
func New(timeout time.Duration, c *cache.Cache) *Extractor {
	return &Extractor{
		client: &http.Client{Timeout: timeout},
		cache:  c,
	}
}

// Extract gets the full text of the article at url.
func (e *Extractor) Extract(ctx context.Context, url string) (*ArticleContent, error) {
	if e.cache != nil {
		if v, ok := e.cache.Get(url); ok {
			if article, ok := v.(*ArticleContent); ok {
				return article, nil
			}
		}
	}

	article, err := e.fetch(ctx, url)
	if err != nil {
		metrics.Global.IncrementExtractionFailures()
		return nil, &ExtractionError{URL: url, Err: err}
	}

	if e.cache != nil {
		e.cache.Set(url, article, cacheTTL)
	}
	return article, nil
}

func (e *Extractor) fetch(ctx context.Context, url string) (*ArticleContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	// pages are not always UTF-8 and do not always say what they are
	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("error decoding page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	content := extractContentBySource(doc, resp.Request.URL.Host)
	if len(content) < minContentChars {
		return nil, fmt.Errorf("content too short (%d chars)", len(content))
	}

	return &ArticleContent{
		Title:   extractTitle(doc),
		Content: content,
		URL:     url,
	}, nil
}

// siteSelectors lists paragraph selectors for publishers whose markup the
// generic list handles badly.
var siteSelectors = map[string][]string{
	"apnews.com":      {".RichTextStoryBody p", ".Article p"},
	"reuters.com":     {"[data-testid^=paragraph]", ".article-body__content p"},
	"bbc.co.uk":       {"[data-component=text-block] p", "article p"},
	"bbc.com":         {"[data-component=text-block] p", "article p"},
	"theguardian.com": {"#maincontent p", ".article-body-commercial-selector p"},
	"npr.org":         {"#storytext p", ".storytext p"},
	"cnn.com":         {".article__content p", ".zn-body__paragraph"},
}

var genericSelectors = []string{
	"article p",
	".article-body p",
	".article p",
	".content p",
	".post-content p",
	".entry-content p",
	"main p",
	"#content p",
	"p",
}

// extractContentBySource gets content by news site
func extractContentBySource(doc *goquery.Document, host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for site, selectors := range siteSelectors {
		if host == site || strings.HasSuffix(host, "."+site) {
			if content := collectParagraphs(doc, selectors, 10, 1); content != "" {
				return cleanContent(content)
			}
			break
		}
	}
	return cleanContent(collectParagraphs(doc, genericSelectors, 20, 3))
}

// collectParagraphs tries selectors in order and takes the first one that
// yields at least enough paragraphs longer than minLen, else the richest one.
func collectParagraphs(doc *goquery.Document, selectors []string, minLen, enough int) string {
	var best []string
	for _, selector := range selectors {
		var paragraphs []string
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > minLen {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > len(best) {
			best = paragraphs
		}
		if len(best) >= enough {
			break
		}
	}
	return strings.Join(best, "\n\n")
}

// extractTitle gets article title
func extractTitle(doc *goquery.Document) string {
	selectors := []string{
		"h1",
		"meta[property='og:title']",
		"title",
	}

	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title, _ = sel.Attr("content")
			title = strings.TrimSpace(title)
		}
		if title != "" {
			return title
		}
	}

	return ""
}

var junkIndicators = []string{
	"cookie", "subscribe", "sign up", "newsletter", "advertisement",
	"all rights reserved", "click here", "follow us", "share this",
	"read more", "related:", "privacy policy",
}

// cleanContent drops boilerplate lines and keeps whole paragraphs up to the
// length limit.
func cleanContent(content string) string {
	if content == "" {
		return ""
	}

	var kept []string
	for _, p := range strings.Split(content, "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if len(p) < 30 {
			continue
		}
		lower := strings.ToLower(p)
		isJunk := false
		for _, indicator := range junkIndicators {
			if strings.Contains(lower, indicator) {
				isJunk = true
				break
			}
		}
		if isJunk {
			continue
		}
		kept = append(kept, p)
	}

	var selected []string
	total := 0
	for _, p := range kept {
		if total+len(p) > maxContentChars && len(selected) > 0 {
			break
		}
		selected = append(selected, p)
		total += len(p) + 2
	}

	result := strings.Join(selected, "\n\n")
	if len(selected) == 1 && len(result) > maxContentChars {
		cut := result[:maxContentChars]
		if idx := strings.LastIndex(cut, ". "); idx > maxContentChars/2 {
			cut = cut[:idx+1]
		}
		result = cut
	}
	logger.Debug("cleaned article content", "paragraphs", len(selected), "chars", len(result))
	return result
}
