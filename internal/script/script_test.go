package script

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbrief/internal/backend"
	"github.com/deusflow/newsbrief/internal/news"
	"github.com/deusflow/newsbrief/internal/retry"
)

type fakeBackend struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", nil
}

func payload(bucket news.Bucket) news.Payload {
	return news.Payload{
		Bucket:      bucket,
		GeneratedAt: time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC),
		Categories: []news.CategoryResult{
			{Category: "World", Articles: []news.CleanArticle{
				{Title: "Summit opens in Geneva", Body: "Leaders met on Monday to discuss trade.", Link: "https://example.com/1"},
				{Title: "Floods hit the north", Body: "Rivers rose overnight."},
			}},
			{Category: "Sports", Err: errors.New("down")},
			{Category: "Technology", Articles: []news.CleanArticle{
				{Title: "New chip unveiled", Body: "The chip is faster. See www.example.com for details."},
			}},
		},
	}
}

func quickComposer(b backend.Backend) *Composer {
	c := NewComposer(b, 0)
	c.retry = retry.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}
	return c
}

func TestCompose_NothingToBrief(t *testing.T) {
	p := news.Payload{Bucket: news.Morning, Categories: []news.CategoryResult{{Category: "World"}, {Category: "Sports"}}}
	s, err := quickComposer(&fakeBackend{}).Compose(context.Background(), p)
	require.ErrorIs(t, err, ErrNothingToBrief)
	require.Empty(t, s.Body)

	_, err = quickComposer(nil).Compose(context.Background(), p)
	require.ErrorIs(t, err, ErrNothingToBrief)
}

func TestCompose_UsesAIOutput(t *testing.T) {
	b := &fakeBackend{replies: []string{"**Good morning,**\n\n- In the world of World, leaders met.\n\n\n\nNext up, floods."}}
	s, err := quickComposer(b).Compose(context.Background(), payload(news.Morning))
	require.NoError(t, err)
	require.Equal(t, news.SourceAI, s.Source)
	require.Equal(t, "fake", s.Backend)
	require.Equal(t, "Good morning,\n\nIn the world of World, leaders met.\n\nNext up, floods.", s.Body)
	require.Len(t, b.prompts, 1)
}

func TestCompose_UnavailableFallsBackWithoutRetry(t *testing.T) {
	b := &fakeBackend{errs: []error{backend.Errorf(backend.Unavailable, "fake", "connection refused")}}
	s, err := quickComposer(b).Compose(context.Background(), payload(news.Afternoon))
	require.NoError(t, err)
	require.Equal(t, news.SourceTemplate, s.Source)
	require.True(t, strings.HasPrefix(s.Body, "Good afternoon,"))
	require.Contains(t, s.Body, "In the world of World,")
	require.NoError(t, Validate(s.Body, Greeting(news.Afternoon)))
	require.Len(t, b.prompts, 1)
}

func TestCompose_InvalidOutputRetriesOnceWithRestatedPrompt(t *testing.T) {
	b := &fakeBackend{replies: []string{
		"Here is your news: <b>big</b>",
		"Good night, In the world of World, summit opens.",
	}}
	s, err := quickComposer(b).Compose(context.Background(), payload(news.Night))
	require.NoError(t, err)
	require.Equal(t, news.SourceAI, s.Source)
	require.Len(t, b.prompts, 2)
	require.NotContains(t, b.prompts[0], "previous answer")
	require.Contains(t, b.prompts[1], "previous answer")
}

func TestCompose_InvalidTwiceFallsBack(t *testing.T) {
	b := &fakeBackend{replies: []string{
		"Good night, read more at https://example.com",
		"Good night, [link](https://example.com)",
		"Good night, this would be fine",
	}}
	s, err := quickComposer(b).Compose(context.Background(), payload(news.Night))
	require.NoError(t, err)
	require.Equal(t, news.SourceTemplate, s.Source)
	require.Len(t, b.prompts, 2)
}

func TestCompose_EmptyResponseRetried(t *testing.T) {
	b := &fakeBackend{
		errs:    []error{backend.Errorf(backend.InvalidResponse, "fake", "empty")},
		replies: []string{"", "Good morning, all quiet."},
	}
	s, err := quickComposer(b).Compose(context.Background(), payload(news.Morning))
	require.NoError(t, err)
	require.Equal(t, news.SourceAI, s.Source)
}

func TestCompose_NoBackendUsesTemplate(t *testing.T) {
	s, err := quickComposer(nil).Compose(context.Background(), payload(news.Morning))
	require.NoError(t, err)
	require.Equal(t, news.SourceTemplate, s.Source)
	require.Empty(t, s.Backend)
}

func TestFallback_Layout(t *testing.T) {
	s := Fallback(payload(news.Morning))
	paragraphs := strings.Split(s.Body, "\n\n")
	require.Equal(t, []string{
		"Good morning,",
		"In the world of World, Summit opens in Geneva. Leaders met on Monday to discuss trade.",
		"Next up, Floods hit the north. Rivers rose overnight.",
		"In the world of Technology, New chip unveiled. The chip is faster. See for details.",
	}, paragraphs)
	require.NoError(t, Validate(s.Body, Greeting(news.Morning)))
}

func TestFallback_TruncatesLongBodies(t *testing.T) {
	p := news.Payload{Bucket: news.Night, Categories: []news.CategoryResult{{
		Category: "Science",
		Articles: []news.CleanArticle{{Title: "Long read", Body: strings.Repeat("word ", 400)}},
	}}}
	s := Fallback(p)
	require.Less(t, len([]rune(s.Body)), 420)
	require.NoError(t, Validate(s.Body, Greeting(news.Night)))
}

func TestBuildPrompt_EmbedsPayloadAndRules(t *testing.T) {
	prompt := BuildPrompt(payload(news.Morning), false)
	require.Contains(t, prompt, `"category": "World"`)
	require.Contains(t, prompt, `"summary": "Rivers rose overnight."`)
	require.NotContains(t, prompt, `"Sports"`)
	require.NotContains(t, prompt, "https://example.com/1")
	require.Contains(t, prompt, "Greet: 'Good morning,'")
	require.Contains(t, prompt, "'Next up,'")
	require.Contains(t, prompt, "max 2 per category")
}

func TestValidate(t *testing.T) {
	g := Greeting(news.Morning)
	require.NoError(t, Validate("Good morning, here is the news.", g))
	for _, bad := range []string{
		"",
		"Hello there.",
		"Good morning, <p>news</p>",
		"Good morning, see http://x.io",
		"Good morning, [a](b)",
		"# Headlines\nGood morning,",
	} {
		require.ErrorIs(t, Validate(bad, g), ErrInvalidScript, bad)
	}
}

func TestGreetingBuckets(t *testing.T) {
	at := func(h int) news.Bucket { return news.BucketFor(time.Date(2025, 1, 1, h, 30, 0, 0, time.Local)) }
	require.Equal(t, "Good morning,", Greeting(at(5)))
	require.Equal(t, "Good afternoon,", Greeting(at(12)))
	require.Equal(t, "Good night,", Greeting(at(18)))
	require.Equal(t, "Good night,", Greeting(at(2)))
}
