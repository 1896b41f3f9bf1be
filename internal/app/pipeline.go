// Package app wires one briefing run end to end: collect, compose, deliver,
// persist. It also keeps the diagnostics the HTTP API serves.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/newsbrief/internal/aggregator"
	"github.com/deusflow/newsbrief/internal/config"
	"github.com/deusflow/newsbrief/internal/delivery"
	"github.com/deusflow/newsbrief/internal/logger"
	"github.com/deusflow/newsbrief/internal/metrics"
	"github.com/deusflow/newsbrief/internal/news"
	"github.com/deusflow/newsbrief/internal/script"
	"github.com/deusflow/newsbrief/internal/storage"
)

var (
	// ErrInvalidConfig stops a run before any fetch.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrDeliveryFailed means no target received the script.
	ErrDeliveryFailed = errors.New("all delivery targets failed")
)

const saveTimeout = 10 * time.Second

// RunResult is how a run ended.
type RunResult string

const (
	ResultDelivered      RunResult = "delivered"
	ResultDeliveryFailed RunResult = "delivery_failed"
	ResultNothingToBrief RunResult = "nothing_to_brief"
	ResultComposeFailed  RunResult = "compose_failed"
	ResultInvalidConfig  RunResult = "invalid_config"
	ResultInternalFault  RunResult = "internal_fault"
)

// Overrides change one run only; the configuration is never modified.
// MaxPerCategory caps every source of the run, custom queries included.
type Overrides struct {
	MaxPerCategory int      `json:"max_per_category,omitempty"`
	MediaPlayers   []string `json:"media_players,omitempty"`
	PrerollMS      *int     `json:"preroll_ms,omitempty"`
}

func (o Overrides) Validate() error {
	if o.MaxPerCategory != 0 && (o.MaxPerCategory < config.MinArticles || o.MaxPerCategory > config.MaxArticles) {
		return fmt.Errorf("max_per_category must be between %d and %d", config.MinArticles, config.MaxArticles)
	}
	if o.PrerollMS != nil && *o.PrerollMS < 0 {
		return fmt.Errorf("preroll_ms must not be negative")
	}
	return nil
}

// Report describes one finished run.
type Report struct {
	RunID     string             `json:"run_id"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Result    RunResult          `json:"result"`
	Status    aggregator.Status  `json:"status,omitempty"`
	Payload   news.Payload       `json:"-"`
	Script    *news.Script       `json:"script,omitempty"`
	Outcomes  []delivery.Outcome `json:"outcomes,omitempty"`
}

type Pipeline struct {
	holder *config.Holder
	build  BuildFunc
	store  storage.Store
	diag   *Diagnostics
	now    func() time.Time
	log    *slog.Logger

	mu    sync.Mutex
	comps *Components
}

// NewPipeline builds the components for the current configuration and seeds
// diagnostics from the store.
func NewPipeline(ctx context.Context, holder *config.Holder, store storage.Store, build BuildFunc) (*Pipeline, error) {
	comps, err := build(ctx, holder.Snapshot())
	if err != nil {
		return nil, err
	}

	last, err := store.LoadLastSuccess(ctx)
	if err != nil {
		logger.Warn("⚠️ Could not load last briefing", "error", err)
		last = nil
	}

	return &Pipeline{
		holder: holder,
		build:  build,
		store:  store,
		diag:   NewDiagnostics(last),
		now:    time.Now,
		log:    logger.With("pipeline"),
		comps:  comps,
	}, nil
}

func (p *Pipeline) Diagnostics() *Diagnostics { return p.diag }

// AIUsage reports the daily generation budget, or nil when no limiter is
// wired.
func (p *Pipeline) AIUsage() map[string]interface{} {
	p.mu.Lock()
	rl := p.comps.Limiter
	p.mu.Unlock()
	if rl == nil {
		return nil
	}
	return rl.GetStats()
}

// Reload validates cfg, rebuilds the components and makes cfg current for
// later runs. A run in flight finishes with what it started with.
func (p *Pipeline) Reload(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	comps, err := p.build(ctx, cfg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.comps
	p.comps = comps
	p.holder.Set(cfg)
	p.mu.Unlock()

	go func() {
		old.inUse.Wait()
		old.Close()
	}()
	p.log.Info("🔄 Configuration reloaded", "sources", len(cfg.Sources()))
	return nil
}

// Close releases the components and the store.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	comps := p.comps
	p.mu.Unlock()
	comps.inUse.Wait()
	comps.Close()
	return p.store.Close()
}

func (p *Pipeline) acquire() (*config.Config, *Components) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.comps.inUse.Add(1)
	return p.holder.Snapshot(), p.comps
}

// Run performs one briefing. A run is successful when at least one target
// received the script; only then is the last-success snapshot replaced.
// Having nothing to brief is not an error.
func (p *Pipeline) Run(ctx context.Context, ov Overrides) (report *Report, err error) {
	start := p.now()
	metrics.Global.IncrementRunsStarted()
	r := &Report{RunID: uuid.NewString(), StartedAt: start}

	cfg, comps := p.acquire()
	defer comps.inUse.Done()

	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("internal fault: %v", v)
			r.Result = ResultInternalFault
			r.Duration = p.now().Sub(start)
			p.diag.recordFatal(r, err.Error())
			p.failed(r, err)
			report = r
		}
	}()

	orch := delivery.New(delivery.Config{
		Speakers:     comps.Speakers,
		MediaPlayers: cfg.MediaPlayers,
		Displays:     comps.Displays,
		Preroll:      cfg.Preroll(),
		Timeout:      cfg.DeliveryTimeout(),
		Concurrency:  cfg.Concurrency,
	})
	opts := deliveryOptions(ov)

	sources, err := p.plan(cfg, orch, ov, opts)
	if err != nil {
		r.Result = ResultInvalidConfig
		r.Duration = p.now().Sub(start)
		p.diag.recordFatal(r, err.Error())
		p.failed(r, err)
		return r, err
	}

	composer := script.NewComposer(comps.Backend, cfg.MaxTokens)
	p.log.Info("🚀 Briefing run started", "run_id", r.RunID, "sources", len(sources), "backend", composer.BackendName())

	// The run deadline bounds collection only; whatever completed in time
	// is still composed and delivered.
	collectCtx, cancelCollect := context.WithTimeout(ctx, cfg.RunTimeout())
	defer cancelCollect()
	res := aggregator.New(comps.Fetcher, cfg.Concurrency, cfg.DedupeAcrossCategories).Collect(collectCtx, sources)
	r.Status = res.Status
	r.Payload = news.NewPayload(res.Categories, p.now())

	composeCtx, cancelCompose := context.WithTimeout(ctx, cfg.RunTimeout())
	defer cancelCompose()
	s, err := composer.Compose(composeCtx, r.Payload)
	if errors.Is(err, script.ErrNothingToBrief) {
		metrics.Global.IncrementNothingToBrief()
		r.Result = ResultNothingToBrief
		r.Duration = p.now().Sub(start)
		p.diag.recordRun(r)
		metrics.Global.RecordProcessingTime(r.Duration)
		metrics.Global.SetLastRun()
		p.log.Info("📭 Nothing to brief", "run_id", r.RunID, "status", r.Status)
		return r, nil
	}
	if err != nil {
		r.Result = ResultComposeFailed
		r.Duration = p.now().Sub(start)
		p.diag.recordRun(r)
		p.failed(r, err)
		return r, err
	}
	r.Script = &s

	r.Outcomes = orch.Deliver(ctx, s, opts)
	r.Duration = p.now().Sub(start)

	if !delivery.Successful(r.Outcomes) {
		r.Result = ResultDeliveryFailed
		p.diag.recordRun(r)
		p.failed(r, ErrDeliveryFailed)
		return r, ErrDeliveryFailed
	}

	r.Result = ResultDelivered
	p.diag.recordRun(r)
	p.persist(ctx, r, s)

	metrics.Global.RecordProcessingTime(r.Duration)
	metrics.Global.SetLastRun()
	p.log.Info("✅ Briefing delivered",
		"run_id", r.RunID,
		"source", s.Source,
		"targets", len(r.Outcomes),
		"duration", r.Duration)
	return r, nil
}

// plan returns the sources for this run after overrides, or an
// ErrInvalidConfig describing why nothing can run.
func (p *Pipeline) plan(cfg *config.Config, orch *delivery.Orchestrator, ov Overrides, opts delivery.Options) ([]news.Source, error) {
	if err := ov.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	sources := cfg.Sources()
	if ov.MaxPerCategory > 0 {
		for i := range sources {
			sources[i].MaxArticles = ov.MaxPerCategory
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no categories enabled", ErrInvalidConfig)
	}
	if !orch.HasTargets(opts) {
		return nil, fmt.Errorf("%w: no delivery targets configured", ErrInvalidConfig)
	}
	return sources, nil
}

func deliveryOptions(ov Overrides) delivery.Options {
	opts := delivery.Options{MediaPlayers: ov.MediaPlayers}
	if ov.PrerollMS != nil {
		d := time.Duration(*ov.PrerollMS) * time.Millisecond
		opts.Preroll = &d
	}
	return opts
}

// persist stores the successful run. A storage failure is logged; the
// briefing was already delivered.
func (p *Pipeline) persist(ctx context.Context, r *Report, s news.Script) {
	snap := storage.NewSnapshot(r.RunID, r.Payload, s, r.Outcomes, r.Duration)
	p.diag.recordSuccess(snap)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := p.store.SaveLastSuccess(saveCtx, snap); err != nil {
		p.log.Error("❌ Failed to save last briefing", "run_id", r.RunID, "error", err)
	}
}

func (p *Pipeline) failed(r *Report, err error) {
	metrics.Global.IncrementRunsFailed()
	metrics.Global.SetError(err.Error())
	metrics.Global.RecordProcessingTime(r.Duration)
	p.log.Error("❌ Briefing run failed", "run_id", r.RunID, "result", r.Result, "error", err)
}
