package rss

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/newsbrief/internal/logger"
	"github.com/deusflow/newsbrief/internal/news"
	"github.com/deusflow/newsbrief/internal/scraper"
)

const (
	// DefaultSectionBase is the Google News headline section root.
	DefaultSectionBase = "https://news.google.com/rss/headlines/section"
	// DefaultSearchURL is the Google News search feed; %s is the escaped query.
	DefaultSearchURL = "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en"

	localeParams = "hl=en-US&gl=US&ceid=US:en"
	maxFeedBytes = 8 << 20
)

// TopicURL returns the section feed for a Google News topic such as TECHNOLOGY.
func TopicURL(base, topic string) string {
	return fmt.Sprintf("%s/topic/%s?%s", strings.TrimRight(base, "/"), topic, localeParams)
}

// GeoURL returns the local news feed for a place name.
func GeoURL(base, geo string) string {
	return fmt.Sprintf("%s/geo/%s?%s", strings.TrimRight(base, "/"), url.PathEscape(geo), localeParams)
}

// ContentExtractor fetches the full text of one article page.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (*scraper.ArticleContent, error)
}

// Client fetches sources into raw articles.
type Client struct {
	http      *http.Client
	extractor ContentExtractor
	searchURL string
}

// NewClient creates a feed client. Every network call is bounded by timeout.
// extractor is only needed for query sources.
func NewClient(timeout time.Duration, extractor ContentExtractor, searchURL string) *Client {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		extractor: extractor,
		searchURL: searchURL,
	}
}

// Fetch returns up to src.MaxArticles raw articles in document order.
func (c *Client) Fetch(ctx context.Context, src news.Source) ([]news.RawArticle, error) {
	switch src.Mode {
	case news.ModeQuery:
		return c.fetchQuery(ctx, src)
	default:
		feed, err := c.fetchFeed(ctx, src.URL, src.ID)
		if err != nil {
			return nil, err
		}
		articles := make([]news.RawArticle, 0, min(len(feed.Items), src.MaxArticles))
		for _, item := range feed.Items {
			if src.MaxArticles > 0 && len(articles) >= src.MaxArticles {
				break
			}
			articles = append(articles, toRaw(item, feed.Link))
		}
		logger.Debug("📥 Loaded feed", "source", src.ID, "items", len(feed.Items), "kept", len(articles))
		return articles, nil
	}
}

// fetchQuery runs the search and extracts each hit. A page that cannot be
// extracted is dropped on its own.
func (c *Client) fetchQuery(ctx context.Context, src news.Source) ([]news.RawArticle, error) {
	if c.extractor == nil {
		return nil, &news.FetchError{Kind: news.FetchNetwork, Source: src.ID, Err: fmt.Errorf("no content extractor configured")}
	}
	searchURL := fmt.Sprintf(c.searchURL, url.QueryEscape(src.Query))
	feed, err := c.fetchFeed(ctx, searchURL, src.ID)
	if err != nil {
		return nil, err
	}

	var articles []news.RawArticle
	dropped := 0
	for _, item := range feed.Items {
		if src.MaxArticles > 0 && len(articles) >= src.MaxArticles {
			break
		}
		if ctx.Err() != nil {
			break
		}
		raw := toRaw(item, feed.Link)
		if raw.Link == "" {
			dropped++
			continue
		}
		content, err := c.extractor.Extract(ctx, raw.Link)
		if err != nil {
			logger.Warn("⚠️ Dropping article", "source", src.ID, "error", err)
			dropped++
			continue
		}
		if content.Title != "" && raw.Title == "" {
			raw.Title = content.Title
		}
		raw.Summary = content.Content
		articles = append(articles, raw)
	}

	logger.Info("🔎 Custom source fetched", "source", src.ID, "results", len(feed.Items), "kept", len(articles), "dropped", dropped)
	return articles, nil
}

func (c *Client) fetchFeed(ctx context.Context, feedURL, sourceID string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &news.FetchError{Kind: news.FetchNetwork, Source: sourceID, Err: err}
	}
	req.Header.Set("User-Agent", scraper.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &news.FetchError{Kind: news.FetchNetwork, Source: sourceID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &news.FetchError{Kind: news.FetchNetwork, Source: sourceID, Err: fmt.Errorf("HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &news.FetchError{Kind: news.FetchNetwork, Source: sourceID, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &news.FetchError{Kind: news.FetchEmpty, Source: sourceID}
	}

	// gofeed sniffs the format and handles the declared encoding itself.
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &news.FetchError{Kind: news.FetchParse, Source: sourceID, Err: err}
	}
	return feed, nil
}

func toRaw(item *gofeed.Item, feedLink string) news.RawArticle {
	summary := item.Description
	if summary == "" {
		summary = item.Content
	}
	title := item.Title
	if isGoogleNews(item.Link) || isGoogleNews(feedLink) {
		title = stripPublisher(title)
	}
	return news.RawArticle{
		Title:     title,
		Summary:   summary,
		Link:      item.Link,
		Published: item.PublishedParsed,
	}
}

func isGoogleNews(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Hostname() == "news.google.com"
}

// stripPublisher removes the trailing " - Publisher" Google News appends.
func stripPublisher(title string) string {
	idx := strings.LastIndex(title, " - ")
	if idx <= 0 {
		return title
	}
	return strings.TrimSpace(title[:idx])
}
