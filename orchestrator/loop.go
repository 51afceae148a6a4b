// Package orchestrator owns the auto-pilot lifecycle: it starts a cycle when
// the loop is activated, waits the configured interval between cycles and
// stops scheduling when deactivated.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autopilot/config"
	"autopilot/logging"
	"autopilot/state"
	"autopilot/types"
)

// ErrClosed is returned by UpdateConfig and SetActive after Shutdown
var ErrClosed = errors.New("orchestrator: loop is shut down")

// Runner executes one cycle
type Runner interface {
	Run(ctx context.Context, cfg types.CycleConfig) (*types.GeneratedPost, error)
}

// ConfigStore persists the cycle config and supplies feature toggles
type ConfigStore interface {
	LoadConfig(ctx context.Context) (types.CycleConfig, bool, error)
	SaveConfig(ctx context.Context, cfg types.CycleConfig) error
	Features(ctx context.Context) (types.FeatureToggles, error)
}

// Loop drives cycles. At most one cycle is in flight; deactivation cancels
// the pending run but never interrupts the running one.
type Loop struct {
	mu sync.Mutex

	runner Runner
	store  ConfigStore
	state  *state.Manager
	sched  Scheduler
	logger logging.Logger
	now    func() time.Time

	baseCtx     context.Context
	cancelBase  context.CancelFunc
	pending     Handle
	pendingSeq  uint64
	abortStreak int
	closed      bool
	wg          sync.WaitGroup
}

// Option configures a Loop
type Option func(*Loop)

func WithScheduler(s Scheduler) Option { return func(l *Loop) { l.sched = s } }

func WithLogger(log logging.Logger) Option { return func(l *Loop) { l.logger = log } }

func WithClock(now func() time.Time) Option { return func(l *Loop) { l.now = now } }

// NewLoop creates an inactive loop. Call Start to restore persisted config.
func NewLoop(runner Runner, store ConfigStore, st *state.Manager, opts ...Option) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		runner:     runner,
		store:      store,
		state:      st,
		sched:      TimerScheduler{},
		logger:     logging.Discard(),
		now:        time.Now,
		baseCtx:    ctx,
		cancelBase: cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start restores the persisted config and runs a cycle if it is active
func (l *Loop) Start(ctx context.Context) error {
	cfg, found, err := l.store.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !found {
		cfg = l.state.Config()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.SetConfig(cfg)
	l.logger.WithFields(logging.Fields{
		"niche":    cfg.TopicNiche,
		"interval": cfg.IntervalMinutes,
		"active":   cfg.IsActive,
	}).Info("Orchestrator started")
	if cfg.IsActive {
		l.startLocked()
	}
	return nil
}

// UpdateConfig validates, persists and applies cfg. Activating an idle loop
// runs a cycle immediately; deactivating cancels the pending run.
func (l *Loop) UpdateConfig(ctx context.Context, cfg types.CycleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyLocked(ctx, cfg)
}

// SetActive flips IsActive on the live config. The read and the write happen
// under one lock so concurrent toggles cannot persist a stale config.
func (l *Loop) SetActive(ctx context.Context, active bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cfg := l.state.Config()
	cfg.IsActive = active
	return l.applyLocked(ctx, cfg)
}

// applyLocked persists cfg and then applies it. The store always holds the
// config that is live, since saves and applies are serialized by l.mu.
func (l *Loop) applyLocked(ctx context.Context, cfg types.CycleConfig) error {
	if l.closed {
		return ErrClosed
	}
	if err := l.store.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	prev := l.state.Config()
	l.state.SetConfig(cfg)

	switch {
	case !cfg.IsActive:
		l.cancelPendingLocked()
		l.abortStreak = 0
		if !l.state.Running() && l.state.Phase() != types.PhaseIdle {
			_ = l.state.SetPhase(types.PhaseIdle)
		}
		if prev.IsActive {
			l.logger.Info("Auto-pilot deactivated")
		}
	case !prev.IsActive:
		l.logger.Info("Auto-pilot activated")
		l.startLocked()
	case l.pending == nil && !l.state.Running() && l.state.Phase() == types.PhaseIdle:
		// Active but stalled, e.g. after an abort with resume disabled
		l.abortStreak = 0
		l.logger.Info("Auto-pilot restarted")
		l.startLocked()
	case prev.IntervalMinutes != cfg.IntervalMinutes && l.pending != nil:
		l.scheduleLocked(interval(cfg))
	}
	return nil
}

// CurrentPhase returns the phase of the current or last cycle
func (l *Loop) CurrentPhase() types.CyclePhase {
	return l.state.Phase()
}

// Shutdown stops scheduling and waits for an in-flight cycle. When ctx
// expires first, the cycle's context is canceled.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.cancelPendingLocked()
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.cancelBase()
		return nil
	case <-ctx.Done():
		l.cancelBase()
		<-done
		return ctx.Err()
	}
}

// startLocked launches a cycle unless one is in flight or the phase is not Idle
func (l *Loop) startLocked() bool {
	if l.closed || !l.state.TryBeginRun() {
		return false
	}
	l.cancelPendingLocked()
	l.wg.Add(1)
	go l.runCycle()
	return true
}

func (l *Loop) runCycle() {
	defer l.wg.Done()

	cfg := l.state.Config()
	_, err := l.runner.Run(l.baseCtx, cfg)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.EndRun()
	active := l.state.Config().IsActive && !l.closed

	if err != nil {
		_ = l.state.SetPhase(types.PhaseIdle)
		l.logger.WithError(err).Warn("Cycle aborted")
		if active && l.resumeOnAbort() {
			l.abortStreak++
			delay := abortBackoff(l.abortStreak, interval(l.state.Config()))
			l.logger.WithField("delay", delay.String()).Info("Resuming after abort")
			l.scheduleLocked(delay)
		}
		return
	}

	l.abortStreak = 0
	if !active {
		_ = l.state.SetPhase(types.PhaseIdle)
		return
	}
	l.scheduleLocked(interval(l.state.Config()))
}

// fire is the scheduled wake-up that ends the cooldown. A wake-up that was
// superseded or canceled after its timer already fired is ignored.
func (l *Loop) fire(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq != l.pendingSeq || l.pending == nil {
		return
	}
	l.pending = nil
	l.state.SetNextRun(time.Time{})

	if l.closed || !l.state.Config().IsActive {
		return
	}
	if !l.state.Running() && l.state.Phase() == types.PhaseCooldown {
		_ = l.state.SetPhase(types.PhaseIdle)
	}
	l.startLocked()
}

func (l *Loop) scheduleLocked(d time.Duration) {
	l.cancelPendingLocked()
	l.pendingSeq++
	seq := l.pendingSeq
	l.state.SetNextRun(l.now().Add(d))
	l.pending = l.sched.After(d, func() { l.fire(seq) })
}

func (l *Loop) cancelPendingLocked() {
	if l.pending != nil {
		l.pending.Cancel()
		l.pending = nil
		l.pendingSeq++
	}
	l.state.SetNextRun(time.Time{})
}

func (l *Loop) resumeOnAbort() bool {
	features, err := l.store.Features(l.baseCtx)
	if err != nil {
		l.logger.WithError(err).Warn("Failed to read feature toggles")
		return types.DefaultFeatureToggles().ResumeOnAbort
	}
	return features.ResumeOnAbort
}

func interval(cfg types.CycleConfig) time.Duration {
	return time.Duration(cfg.IntervalMinutes) * time.Minute
}

// abortBackoff doubles from AbortBackoff per consecutive abort, capped at max
func abortBackoff(streak int, max time.Duration) time.Duration {
	d := config.AbortBackoff
	for i := 1; i < streak && d < max; i++ {
		d *= 2
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}
