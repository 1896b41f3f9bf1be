package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/deusflow/newsbrief/internal/backend"
	"github.com/deusflow/newsbrief/internal/logger"
)

// AIRateLimiter keeps a daily request budget per generation backend.
type AIRateLimiter struct {
	mu        sync.Mutex
	counts    map[string]int
	limits    map[string]int
	total     int
	maxTotal  int
	resetTime time.Time
	window    time.Duration
	now       func() time.Time
}

// NewAIRateLimiter creates a limiter; a limit <= 0 means unlimited.
func NewAIRateLimiter(limits map[string]int, maxTotal int) *AIRateLimiter {
	rl := &AIRateLimiter{
		counts:   make(map[string]int),
		limits:   make(map[string]int, len(limits)),
		maxTotal: maxTotal,
		window:   24 * time.Hour,
		now:      time.Now,
	}
	for name, limit := range limits {
		rl.limits[name] = limit
	}
	rl.resetTime = rl.now().Add(rl.window)
	return rl
}

// Use records one request for name, or reports that the budget is spent.
func (rl *AIRateLimiter) Use(name string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()

	if limit := rl.limits[name]; limit > 0 && rl.counts[name] >= limit {
		logger.Warn("⚠️ AI rate limit reached", "backend", name, "used", rl.counts[name], "limit", limit)
		return false
	}
	if rl.maxTotal > 0 && rl.total >= rl.maxTotal {
		logger.Warn("⚠️ Total AI rate limit reached", "used", rl.total, "limit", rl.maxTotal)
		return false
	}

	rl.counts[name]++
	rl.total++
	logger.Debug("📊 AI usage", "backend", name, "used", rl.counts[name], "total", rl.total)
	return true
}

// GetStats returns current usage per backend.
func (rl *AIRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := map[string]interface{}{
		"total_used":  rl.total,
		"total_limit": rl.maxTotal,
		"reset_time":  rl.resetTime,
	}
	for name, used := range rl.counts {
		stats[name+"_used"] = used
	}
	for name, limit := range rl.limits {
		stats[name+"_limit"] = limit
	}
	return stats
}

// Wrap returns a backend that spends this limiter's budget before each call.
func (rl *AIRateLimiter) Wrap(b backend.Backend) backend.Backend {
	if b == nil {
		return nil
	}
	return &limited{Backend: b, rl: rl}
}

// checkReset resets counters if reset time has passed
func (rl *AIRateLimiter) checkReset() {
	if rl.now().After(rl.resetTime) {
		logger.Info("🔄 Resetting AI rate limiter counters", "total_used", rl.total)
		rl.counts = make(map[string]int)
		rl.total = 0
		rl.resetTime = rl.now().Add(rl.window)
	}
}

type limited struct {
	backend.Backend
	rl *AIRateLimiter
}

func (l *limited) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !l.rl.Use(l.Name()) {
		return "", backend.Errorf(backend.Quota, l.Name(), "daily request budget exhausted")
	}
	return l.Backend.Generate(ctx, prompt, maxTokens)
}
