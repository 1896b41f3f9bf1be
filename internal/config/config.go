// Package config loads the briefing configuration: a YAML file for the
// category, source and sink layout, then environment overrides for secrets
// and tunables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/newsbrief/internal/backend"
	"github.com/deusflow/newsbrief/internal/news"
	"github.com/deusflow/newsbrief/internal/rss"
)

const DefaultPath = "configs/newsbrief.yaml"

// Bounds for articles per source.
const (
	MinArticles = 1
	MaxArticles = 10
)

const defaultCustomArticles = 3

// LocalCategory is fetched by place name instead of topic.
const LocalCategory = "Local"

// BuiltinCategories lists the Google News sections in display order.
var BuiltinCategories = []struct {
	Name  string
	Topic string
}{
	{"U.S.", "NATION"},
	{"World", "WORLD"},
	{LocalCategory, "GEO"},
	{"Business", "BUSINESS"},
	{"Technology", "TECHNOLOGY"},
	{"Entertainment", "ENTERTAINMENT"},
	{"Sports", "SPORTS"},
	{"Science", "SCIENCE"},
	{"Health", "HEALTH"},
}

// CustomSource is a search query shown as its own category.
type CustomSource struct {
	Name        string `yaml:"name"`
	Query       string `yaml:"query"`
	MaxArticles int    `yaml:"max_articles"`
	Disabled    bool   `yaml:"disabled"`
}

type Config struct {
	// Sources
	Categories             []string       `yaml:"categories"`
	LocalGeo               string         `yaml:"local_geo"`
	CustomSources          []CustomSource `yaml:"custom_sources"`
	MaxPerCategory         int            `yaml:"max_per_category"`
	DedupeAcrossCategories bool           `yaml:"dedupe_across_categories"`
	SectionBase            string         `yaml:"section_base"`
	SearchURL              string         `yaml:"search_url"`

	// Schedule
	ScanIntervalSec   int  `yaml:"scan_interval"`
	RunOnStart        bool `yaml:"run_on_start"`
	RunTimeoutSec     int  `yaml:"run_timeout"`
	RequestTimeoutSec int  `yaml:"request_timeout"`
	Concurrency       int  `yaml:"concurrency"`

	// Generation
	AIMode                 string `yaml:"ai_mode"`
	MaxTokens              int    `yaml:"max_tokens"`
	GeminiAPIKey           string `yaml:"gemini_api_key"`
	GeminiModel            string `yaml:"gemini_model"`
	OpenAIAPIKey           string `yaml:"openai_api_key"`
	OpenAIBaseURL          string `yaml:"openai_base_url"`
	ConversationAgentID    string `yaml:"conversation_agent_id"`
	GeminiDailyLimit       int    `yaml:"gemini_daily_limit"`
	ConversationDailyLimit int    `yaml:"conversation_daily_limit"`
	AIDailyLimit           int    `yaml:"ai_daily_limit"`

	// Sinks
	HomeAssistantURL   string   `yaml:"ha_url"`
	HomeAssistantToken string   `yaml:"ha_token"`
	TTSEntities        []string `yaml:"tts_entities"`
	MediaPlayers       []string `yaml:"media_players"`
	TelegramToken      string   `yaml:"telegram_token"`
	TelegramChatID     string   `yaml:"telegram_chat_id"`
	TelegramAPIURL     string   `yaml:"telegram_api_url"`
	PrerollMS          int      `yaml:"preroll_ms"`
	DeliveryTimeoutSec int      `yaml:"delivery_timeout"`

	// App settings
	ListenAddr  string `yaml:"listen_addr"`
	StatePath   string `yaml:"state_path"`
	DatabaseURL string `yaml:"database_url"`
	Debug       bool   `yaml:"debug"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{
		LocalGeo:               "New York, NY",
		MaxPerCategory:         2,
		DedupeAcrossCategories: true,
		SectionBase:            rss.DefaultSectionBase,
		SearchURL:              rss.DefaultSearchURL,
		ScanIntervalSec:        1800,
		RunTimeoutSec:          120,
		RequestTimeoutSec:      10,
		Concurrency:            4,
		AIMode:                 backend.ModeAuto,
		PrerollMS:              150,
		DeliveryTimeoutSec:     30,
		ListenAddr:             ":8080",
		StatePath:              "data/last_briefing.json",
	}
	for _, c := range BuiltinCategories {
		cfg.Categories = append(cfg.Categories, c.Name)
	}
	return cfg
}

// Load reads path (or NEWSBRIEF_CONFIG, or DefaultPath) and applies the
// environment. A missing default file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = getEnvOrDefault("NEWSBRIEF_CONFIG", DefaultPath)
		explicit = os.Getenv("NEWSBRIEF_CONFIG") != ""
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	setString(&c.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.GeminiModel, "GEMINI_MODEL")
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&c.ConversationAgentID, "CONVERSATION_AGENT_ID")
	setString(&c.AIMode, "AI_MODE")
	setString(&c.HomeAssistantURL, "HA_URL")
	setString(&c.HomeAssistantToken, "HA_TOKEN")
	setString(&c.TelegramToken, "TELEGRAM_TOKEN")
	setString(&c.TelegramChatID, "TELEGRAM_CHAT_ID")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.LocalGeo, "LOCAL_GEO")
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.StatePath, "STATE_PATH")

	setInt(&c.ScanIntervalSec, "SCAN_INTERVAL")
	setInt(&c.MaxPerCategory, "MAX_PER_CATEGORY")
	setInt(&c.PrerollMS, "PREROLL_MS")
	setInt(&c.RunTimeoutSec, "RUN_TIMEOUT")
	setInt(&c.AIDailyLimit, "AI_DAILY_LIMIT")

	setList(&c.TTSEntities, "TTS_ENTITIES")
	setList(&c.MediaPlayers, "MEDIA_PLAYERS")
	setList(&c.Categories, "CATEGORIES")

	if debug := os.Getenv("DEBUG"); debug == "true" {
		c.Debug = true
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			*dst = val
		}
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

// Validate rejects settings no run could work with. Having no enabled
// category or no sink is allowed here; runs report it.
func (c *Config) Validate() error {
	if c.ScanIntervalSec < 60 {
		return fmt.Errorf("scan_interval must be at least 60 seconds, got %d", c.ScanIntervalSec)
	}
	if c.MaxPerCategory < MinArticles || c.MaxPerCategory > MaxArticles {
		return fmt.Errorf("max_per_category must be between %d and %d", MinArticles, MaxArticles)
	}
	if c.PrerollMS < 0 {
		return fmt.Errorf("preroll_ms must not be negative")
	}
	if c.RunTimeoutSec <= 0 || c.RequestTimeoutSec <= 0 || c.DeliveryTimeoutSec <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	known := make(map[string]bool, len(BuiltinCategories))
	for _, b := range BuiltinCategories {
		known[b.Name] = true
	}
	for _, name := range c.Categories {
		if !known[name] {
			return fmt.Errorf("unknown category %q", name)
		}
	}
	for i, cs := range c.CustomSources {
		if strings.TrimSpace(cs.Query) == "" {
			return fmt.Errorf("custom_sources[%d]: query is required", i)
		}
		if cs.MaxArticles != 0 && (cs.MaxArticles < MinArticles || cs.MaxArticles > MaxArticles) {
			return fmt.Errorf("custom_sources[%d]: max_articles must be between %d and %d", i, MinArticles, MaxArticles)
		}
	}

	switch strings.ToLower(c.AIMode) {
	case backend.ModeAuto, backend.ModeTemplate:
	case backend.ModeGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when ai_mode is %q", c.AIMode)
		}
	case backend.ModeConversation:
		if c.ConversationAgentID == "" {
			return fmt.Errorf("conversation_agent_id is required when ai_mode is %q", c.AIMode)
		}
	default:
		return fmt.Errorf("ai_mode must be one of auto, template, gemini, conversation")
	}

	if len(c.TTSEntities) > 0 && (c.HomeAssistantURL == "" || c.HomeAssistantToken == "") {
		return fmt.Errorf("HA_URL and HA_TOKEN are required for tts_entities")
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

// Sources returns the enabled sources in display order: built-in categories
// in their fixed order, then custom sources as configured.
func (c *Config) Sources() []news.Source {
	enabled := make(map[string]bool, len(c.Categories))
	for _, name := range c.Categories {
		enabled[name] = true
	}

	var out []news.Source
	for _, b := range BuiltinCategories {
		if !enabled[b.Name] {
			continue
		}
		url := rss.TopicURL(c.SectionBase, b.Topic)
		if b.Name == LocalCategory {
			url = rss.GeoURL(c.SectionBase, c.LocalGeo)
		}
		out = append(out, news.Source{
			ID:          b.Name,
			Category:    b.Name,
			Mode:        news.ModeFeed,
			URL:         url,
			MaxArticles: c.MaxPerCategory,
		})
	}
	for _, cs := range c.CustomSources {
		if cs.Disabled {
			continue
		}
		name := cs.Name
		if name == "" {
			name = cs.Query
		}
		max := cs.MaxArticles
		if max == 0 {
			max = defaultCustomArticles
		}
		out = append(out, news.Source{
			ID:          CustomSourceID(cs.Query),
			Category:    name,
			Mode:        news.ModeQuery,
			Query:       cs.Query,
			MaxArticles: max,
		})
	}
	return out
}

// CustomSourceID is stable for a query across restarts and reloads.
func CustomSourceID(query string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("newsbrief:query:"+strings.ToLower(strings.TrimSpace(query)))).String()
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSec) * time.Second
}

func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSec) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSec) * time.Second
}

func (c *Config) Preroll() time.Duration {
	return time.Duration(c.PrerollMS) * time.Millisecond
}

// Snapshot returns a deep copy, so a run never sees later edits.
func (c *Config) Snapshot() *Config {
	cp := *c
	cp.Categories = append([]string(nil), c.Categories...)
	cp.CustomSources = append([]CustomSource(nil), c.CustomSources...)
	cp.TTSEntities = append([]string(nil), c.TTSEntities...)
	cp.MediaPlayers = append([]string(nil), c.MediaPlayers...)
	return &cp
}

// Holder shares the live configuration. Set replaces it for later runs.
type Holder struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewHolder(cfg *Config) *Holder {
	return &Holder{cfg: cfg.Snapshot()}
}

// Snapshot returns a private copy of the current configuration.
func (h *Holder) Snapshot() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.Snapshot()
}

func (h *Holder) Set(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg.Snapshot()
}
