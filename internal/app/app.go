package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deusflow/newsbrief/internal/aggregator"
	"github.com/deusflow/newsbrief/internal/backend"
	"github.com/deusflow/newsbrief/internal/cache"
	"github.com/deusflow/newsbrief/internal/config"
	"github.com/deusflow/newsbrief/internal/conversation"
	"github.com/deusflow/newsbrief/internal/delivery"
	"github.com/deusflow/newsbrief/internal/gemini"
	"github.com/deusflow/newsbrief/internal/logger"
	"github.com/deusflow/newsbrief/internal/ratelimit"
	"github.com/deusflow/newsbrief/internal/rss"
	"github.com/deusflow/newsbrief/internal/scraper"
	"github.com/deusflow/newsbrief/internal/speech"
	"github.com/deusflow/newsbrief/internal/telegram"
)

const pageCacheCleanup = 30 * time.Minute

// Components are the long-lived clients a run uses. They are rebuilt when
// the configuration is reloaded.
type Components struct {
	Fetcher  aggregator.Fetcher
	Backend  backend.Backend
	Speakers []delivery.Speaker
	Displays []delivery.Displayer
	// Limiter is shared by every build from the same BuildFunc.
	Limiter *ratelimit.AIRateLimiter

	closers []func()
	inUse   sync.WaitGroup
}

// Close releases client resources. Runs must be finished with c.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// BuildFunc creates components for one configuration.
type BuildFunc func(ctx context.Context, cfg *config.Config) (*Components, error)

// NewBuilder returns the production BuildFunc. The AI request budget is
// created once from cfg and survives reloads.
func NewBuilder(cfg *config.Config) BuildFunc {
	rl := ratelimit.NewAIRateLimiter(map[string]int{
		backend.ModeGemini:       cfg.GeminiDailyLimit,
		backend.ModeConversation: cfg.ConversationDailyLimit,
	}, cfg.AIDailyLimit)
	return func(ctx context.Context, cfg *config.Config) (*Components, error) {
		return Build(ctx, cfg, rl)
	}
}

// Build wires the feed client, generation backend and sinks for cfg.
func Build(ctx context.Context, cfg *config.Config, rl *ratelimit.AIRateLimiter) (*Components, error) {
	if rl == nil {
		rl = ratelimit.NewAIRateLimiter(nil, 0)
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &Components{Limiter: rl, closers: []func(){cancel}}

	pages := cache.New()
	pages.StartCleanup(cctx, pageCacheCleanup)
	extractor := scraper.New(cfg.RequestTimeout(), pages)
	c.Fetcher = rss.NewClient(cfg.RequestTimeout(), extractor, cfg.SearchURL)

	// Ranked by capability: gemini first.
	var gem, conv backend.Backend
	if cfg.GeminiAPIKey != "" {
		gc, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, gc.Close)
		gem = rl.Wrap(gc)
	}
	if cfg.ConversationAgentID != "" {
		conv = rl.Wrap(conversation.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ConversationAgentID))
	}
	b, err := backend.Select(cfg.AIMode, gem, conv)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("select backend: %w", err)
	}
	c.Backend = b

	for _, entity := range cfg.TTSEntities {
		c.Speakers = append(c.Speakers, speech.NewClient(cfg.HomeAssistantURL, cfg.HomeAssistantToken, entity))
	}
	if cfg.TelegramToken != "" {
		c.Displays = append(c.Displays, telegram.NewSender(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChatID))
	}

	backendName := "template"
	if b != nil {
		backendName = b.Name()
	}
	logger.Info("🔧 Components ready",
		"backend", backendName,
		"speakers", len(c.Speakers),
		"media_players", len(cfg.MediaPlayers),
		"displays", len(c.Displays))
	return c, nil
}
