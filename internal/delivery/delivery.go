// Package delivery fans a finished script out to the configured speech and
// display sinks. One failing target never holds up the others.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newsbrief/internal/logger"
	"github.com/deusflow/newsbrief/internal/metrics"
	"github.com/deusflow/newsbrief/internal/news"
)

// Speaker reads text aloud on a media player.
type Speaker interface {
	Name() string
	Speak(ctx context.Context, text, player string) error
}

// Displayer shows the script somewhere people read it.
type Displayer interface {
	Name() string
	Display(ctx context.Context, s news.Script) error
}

// Kind classifies sink failures.
type Kind string

const (
	Unreachable Kind = "unreachable"
	Rejected    Kind = "rejected"
)

// DeliveryError is a failed delivery to one target.
type DeliveryError struct {
	Kind   Kind
	Target string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Target, e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Errorf builds a DeliveryError.
func Errorf(kind Kind, target, format string, args ...any) error {
	return &DeliveryError{Kind: kind, Target: target, Err: fmt.Errorf(format, args...)}
}

type Status string

const (
	Delivered Status = "delivered"
	Failed    Status = "failed"
)

// Outcome is the result for one target.
type Outcome struct {
	Target string `json:"target"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Kind   Kind   `json:"kind,omitempty"`
}

// Successful reports whether at least one target got the script.
func Successful(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Status == Delivered {
			return true
		}
	}
	return false
}

// Options are per-call overrides; zero values keep the configured behavior.
type Options struct {
	MediaPlayers []string
	Preroll      *time.Duration
}

type Config struct {
	Speakers     []Speaker
	MediaPlayers []string
	Displays     []Displayer
	Preroll      time.Duration
	// Timeout bounds each target separately.
	Timeout time.Duration
	// Concurrency bounds simultaneous targets.
	Concurrency int
}

type Orchestrator struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
	log   *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	return &Orchestrator{cfg: cfg, sleep: sleepCtx, log: logger.With("delivery")}
}

// HasTargets reports whether Deliver with opts would reach any sink.
func (o *Orchestrator) HasTargets(opts Options) bool {
	return len(o.cfg.Displays) > 0 || (len(o.cfg.Speakers) > 0 && len(o.players(opts)) > 0)
}

func (o *Orchestrator) players(opts Options) []string {
	if opts.MediaPlayers != nil {
		return opts.MediaPlayers
	}
	return o.cfg.MediaPlayers
}

type target struct {
	name    string
	deliver func(ctx context.Context) error
}

func (o *Orchestrator) targets(s news.Script, opts Options) []target {
	var ts []target
	for _, sp := range o.cfg.Speakers {
		for _, player := range o.players(opts) {
			ts = append(ts, target{
				name:    "speech:" + sp.Name() + "/" + player,
				deliver: func(ctx context.Context) error { return sp.Speak(ctx, s.Body, player) },
			})
		}
	}
	for _, d := range o.cfg.Displays {
		ts = append(ts, target{
			name:    "display:" + d.Name(),
			deliver: func(ctx context.Context) error { return d.Display(ctx, s) },
		})
	}
	return ts
}

// Deliver sends s to every target and returns one outcome per target in
// configuration order. The pre-roll delay runs once before the first target.
// Failed targets are not retried.
func (o *Orchestrator) Deliver(ctx context.Context, s news.Script, opts Options) []Outcome {
	ts := o.targets(s, opts)
	outcomes := make([]Outcome, len(ts))
	if len(ts) == 0 {
		return outcomes
	}

	preroll := o.cfg.Preroll
	if opts.Preroll != nil {
		preroll = *opts.Preroll
	}
	if preroll > 0 {
		if err := o.sleep(ctx, preroll); err != nil {
			for i, t := range ts {
				outcomes[i] = failed(t.name, &DeliveryError{Kind: Unreachable, Target: t.name, Err: err})
			}
			return outcomes
		}
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, t := range ts {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
			defer cancel()
			outcomes[i] = o.deliverOne(tctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (o *Orchestrator) deliverOne(ctx context.Context, t target) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = failed(t.name, &DeliveryError{Kind: Unreachable, Target: t.name, Err: fmt.Errorf("sink fault: %v", p)})
		}
		if out.Status == Delivered {
			metrics.Global.IncrementDeliveries()
			o.log.Info("🔊 Delivered", "target", t.name)
		} else {
			metrics.Global.IncrementDeliveryFailures()
			o.log.Error("❌ Delivery failed", "target", t.name, "kind", out.Kind, "reason", out.Reason)
		}
	}()

	err := t.deliver(ctx)
	if err == nil {
		return Outcome{Target: t.name, Status: Delivered}
	}
	var de *DeliveryError
	if !errors.As(err, &de) {
		de = &DeliveryError{Kind: Unreachable, Target: t.name, Err: err}
	}
	return failed(t.name, de)
}

func failed(name string, de *DeliveryError) Outcome {
	reason := string(de.Kind)
	if de.Err != nil {
		reason = de.Err.Error()
	}
	return Outcome{Target: name, Status: Failed, Reason: reason, Kind: de.Kind}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
