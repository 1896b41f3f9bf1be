package news

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	// MaxBodyRunes bounds an article body so prompts stay small.
	MaxBodyRunes = 2000
	// MaxTitleRunes bounds a headline.
	MaxTitleRunes = 300

	maxPasses = 16
)

var noMarkup = strings.NewReplacer("<", "", ">", "")

// Normalize turns a raw article into plain text. It never fails; malformed
// input degrades to whatever text could be recovered, possibly "".
func Normalize(a RawArticle) CleanArticle {
	return CleanArticle{
		Title: CleanText(a.Title, MaxTitleRunes),
		Body:  CleanText(a.Summary, MaxBodyRunes),
		Link:  strings.TrimSpace(a.Link),
	}
}

// CleanText strips markup, decodes entities, collapses whitespace and cuts
// the result to limit runes (0 = no limit). CleanText(CleanText(s)) == CleanText(s).
func CleanText(s string, limit int) string {
	s = toPlain(s)
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		s = toPlain(truncateRunes(s, limit))
	}
	return s
}

// toPlain repeats the strip/decode pass until the text stops changing, so
// double-escaped markup like "&amp;lt;b&amp;gt;" is removed as well.
func toPlain(s string) string {
	for i := 0; i < maxPasses; i++ {
		next := plainPass(s)
		if next == s {
			return next
		}
		s = next
	}
	return collapse(noMarkup.Replace(s))
}

func plainPass(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	// a space before every tag keeps "<p>a</p><p>b</p>" from gluing words together
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(strings.ReplaceAll(s, "<", " <")))
	if err != nil {
		return collapse(noMarkup.Replace(s))
	}
	doc.Find("script, style, noscript").Remove()
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most n runes, preferring a word boundary and
// marking the cut with an ellipsis.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	cut := string(runes[:n-1])
	if idx := strings.LastIndex(cut, " "); idx > len(cut)*4/5 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ") + "…"
}

// TitleKey is the comparison key for duplicate headlines.
func TitleKey(title string) string {
	return strings.ToLower(collapse(title))
}

// Dedupe keeps the first article for every distinct title key, preserving order.
func Dedupe(articles []CleanArticle) []CleanArticle {
	seen := make(map[string]struct{}, len(articles))
	out := make([]CleanArticle, 0, len(articles))
	for _, a := range articles {
		key := TitleKey(a.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// DedupeAcross drops articles whose title already appeared in an earlier
// category. Results must already be in display order.
func DedupeAcross(results []CategoryResult) []CategoryResult {
	seen := make(map[string]struct{})
	out := make([]CategoryResult, len(results))
	for i, r := range results {
		kept := make([]CleanArticle, 0, len(r.Articles))
		for _, a := range r.Articles {
			key := TitleKey(a.Title)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, a)
		}
		r.Articles = kept
		out[i] = r
	}
	return out
}

// Prepare normalizes raw articles, drops untitled ones, dedupes and caps the
// list at max (0 = no cap).
func Prepare(raw []RawArticle, max int) []CleanArticle {
	clean := make([]CleanArticle, 0, len(raw))
	for _, r := range raw {
		a := Normalize(r)
		if a.Title == "" {
			continue
		}
		clean = append(clean, a)
	}
	clean = Dedupe(clean)
	if max > 0 && len(clean) > max {
		clean = clean[:max]
	}
	return clean
}
