package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbrief/internal/backend"
)

type countingBackend struct{ calls int }

func (c *countingBackend) Name() string { return backend.ModeGemini }

func (c *countingBackend) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	c.calls++
	return "Good morning, ok.", nil
}

func TestAIRateLimiter_PerBackendAndTotal(t *testing.T) {
	rl := NewAIRateLimiter(map[string]int{"gemini": 2}, 3)

	require.True(t, rl.Use("gemini"))
	require.True(t, rl.Use("gemini"))
	require.False(t, rl.Use("gemini"))
	require.True(t, rl.Use("conversation"))
	require.False(t, rl.Use("conversation"))

	stats := rl.GetStats()
	require.Equal(t, 3, stats["total_used"])
	require.Equal(t, 2, stats["gemini_used"])
}

func TestAIRateLimiter_ResetsAfterWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	rl := NewAIRateLimiter(map[string]int{"gemini": 1}, 0)
	rl.now = func() time.Time { return now }
	rl.resetTime = now.Add(rl.window)

	require.True(t, rl.Use("gemini"))
	require.False(t, rl.Use("gemini"))

	now = now.Add(25 * time.Hour)
	require.True(t, rl.Use("gemini"))
}

func TestWrap_QuotaWithoutCallingBackend(t *testing.T) {
	rl := NewAIRateLimiter(map[string]int{"gemini": 1}, 0)
	inner := &countingBackend{}
	b := rl.Wrap(inner)
	require.Equal(t, "gemini", b.Name())

	_, err := b.Generate(context.Background(), "p", 10)
	require.NoError(t, err)

	_, err = b.Generate(context.Background(), "p", 10)
	require.Error(t, err)
	require.Equal(t, backend.Quota, backend.KindOf(err))
	require.Equal(t, 1, inner.calls)

	require.Nil(t, rl.Wrap(nil))
}
