package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCache_SetGetExpire(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	c := New()
	c.now = func() time.Time { return now }

	c.Set("page", "text", time.Minute)
	v, ok := c.Get("page")
	require.True(t, ok)
	require.Equal(t, "text", v)

	_, ok = c.Get("missing")
	require.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("page")
	require.False(t, ok)
	require.Empty(t, c.items)
}

func TestCache_Cleanup(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	c := New()
	c.now = func() time.Time { return now }

	c.Set("old", 1, time.Second)
	c.Set("fresh", 2, time.Hour)
	now = now.Add(time.Minute)

	c.cleanup()
	require.Len(t, c.items, 1)
	_, ok := c.Get("fresh")
	require.True(t, ok)
}
