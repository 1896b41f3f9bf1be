// Package scheduler runs a job on an interval and on demand, never more than
// one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deusflow/newsbrief/internal/logger"
)

// ErrStopped is returned by Trigger when the scheduler is not running.
var ErrStopped = errors.New("scheduler stopped")

type State string

const (
	Idle    State = "idle"
	Running State = "running"
)

// TriggerResult tells what a manual trigger did.
type TriggerResult string

const (
	Started TriggerResult = "started"
	// Queued means a run was in flight; the request runs right after it.
	// A later request replaces an earlier queued one.
	Queued TriggerResult = "queued"
)

// RunFunc is one job run. Timer runs receive the zero T.
type RunFunc[T any] func(ctx context.Context, arg T)

type Scheduler[T any] struct {
	interval   time.Duration
	runOnStart bool
	run        RunFunc[T]
	now        func() time.Time
	log        *slog.Logger

	mu      sync.Mutex
	state   State
	pending *T
	timer   *time.Timer
	next    time.Time
	lastRun time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// New creates a scheduler firing every interval. With runOnStart the first
// run starts as soon as Start is called.
func New[T any](interval time.Duration, runOnStart bool, run RunFunc[T]) *Scheduler[T] {
	return &Scheduler[T]{
		interval:   interval,
		runOnStart: runOnStart,
		run:        run,
		now:        time.Now,
		log:        logger.With("scheduler"),
		state:      Idle,
	}
}

// Start arms the timer. Runs get a context derived from ctx.
func (s *Scheduler[T]) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	first := s.now().Add(s.interval)
	if s.runOnStart {
		first = s.now()
	}
	s.schedule(first)
	s.log.Info("⏰ Scheduler started", "interval", s.interval, "next_run", s.next)
}

// Trigger starts a run now, or queues one if a run is in flight.
func (s *Scheduler[T]) Trigger(arg T) (TriggerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return "", ErrStopped
	}
	if s.state == Running {
		s.pending = &arg
		s.log.Info("📥 Run in progress, trigger queued")
		return Queued, nil
	}
	s.begin(arg)
	return Started, nil
}

// State reports whether a run is in flight.
func (s *Scheduler[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextRun is the next timer deadline; zero while a run is in flight.
func (s *Scheduler[T]) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// LastRun is when the most recent run started.
func (s *Scheduler[T]) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Stop disarms the timer, drops any queued trigger, cancels the run in
// flight and waits for it to return.
func (s *Scheduler[T]) Stop() {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("🛑 Scheduler stopped")
}

// schedule arms the timer for deadline. Callers hold mu.
func (s *Scheduler[T]) schedule(deadline time.Time) {
	if s.timer != nil {
		s.timer.Stop()
	}
	d := deadline.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.next = deadline
	s.timer = time.AfterFunc(d, s.fire)
}

func (s *Scheduler[T]) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.state == Running {
		// the deadline is recomputed when the run in flight ends
		return
	}
	var zero T
	s.begin(zero)
}

// begin moves Idle to Running. Callers hold mu.
func (s *Scheduler[T]) begin(arg T) {
	if s.timer != nil {
		s.timer.Stop()
	}
	start := s.now()
	s.state = Running
	s.next = time.Time{}
	s.lastRun = start
	s.wg.Add(1)
	go s.execute(arg, start)
}

func (s *Scheduler[T]) execute(arg T, start time.Time) {
	defer s.wg.Done()

	if err := s.safeRun(arg); err != nil {
		s.log.Error("❌ Run aborted", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	if s.stopped {
		return
	}
	if s.pending != nil {
		next := *s.pending
		s.pending = nil
		s.begin(next)
		return
	}
	s.schedule(start.Add(s.interval))
}

func (s *Scheduler[T]) safeRun(arg T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	s.run(s.ctx, arg)
	return nil
}
