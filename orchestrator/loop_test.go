package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"autopilot/state"
	"autopilot/store"
	"autopilot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner moves the phase like the real executor and records overlap
type fakeRunner struct {
	st      *state.Manager
	release chan struct{}

	mu        sync.Mutex
	calls     int
	fail      error
	phaseErrs []error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (r *fakeRunner) Run(ctx context.Context, _ types.CycleConfig) (*types.GeneratedPost, error) {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		max := r.maxInFlight.Load()
		if n <= max || r.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	r.mu.Lock()
	r.calls++
	fail := r.fail
	if err := r.st.SetPhase(types.PhaseScanningTrends); err != nil {
		r.phaseErrs = append(r.phaseErrs, err)
	}
	r.mu.Unlock()

	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	_ = r.st.SetPhase(types.PhaseCooldown)
	return &types.GeneratedPost{ID: "p"}, nil
}

func (r *fakeRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRunner) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

var testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

type fixture struct {
	repo   *store.Repository
	st     *state.Manager
	sched  *ManualScheduler
	runner *fakeRunner
	loop   *Loop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:  store.NewRepository(store.NewMemory(), "test:"),
		st:    state.NewManager(inactive()),
		sched: &ManualScheduler{},
	}
	f.runner = &fakeRunner{st: f.st}
	f.loop = NewLoop(f.runner, f.repo, f.st, WithScheduler(f.sched), WithClock(func() time.Time { return testNow }))
	t.Cleanup(func() { _ = f.loop.Shutdown(context.Background()) })
	return f
}

func inactive() types.CycleConfig {
	return types.CycleConfig{TopicNiche: "AI", IntervalMinutes: 60}
}

func active() types.CycleConfig {
	cfg := inactive()
	cfg.IsActive = true
	return cfg
}

func TestInactiveLoopNeverRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.loop.Start(ctx))
	cfg := inactive()
	cfg.TopicNiche = "Robotics"
	require.NoError(t, f.loop.UpdateConfig(ctx, cfg))
	f.sched.Fire()
	f.loop.wg.Wait()

	assert.Zero(t, f.runner.Calls())
	assert.Empty(t, f.sched.Pending())
	assert.Equal(t, types.PhaseIdle, f.loop.CurrentPhase())
}

func TestActivationRunsAndSchedulesNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.loop.UpdateConfig(ctx, active()))
	f.loop.wg.Wait()

	assert.Equal(t, 1, f.runner.Calls())
	assert.Equal(t, types.PhaseCooldown, f.loop.CurrentPhase())
	assert.Equal(t, []time.Duration{60 * time.Minute}, f.sched.Pending())
	assert.Equal(t, testNow.Add(60*time.Minute), f.st.NextRun())

	assert.Equal(t, 1, f.sched.Fire())
	f.loop.wg.Wait()
	assert.Equal(t, 2, f.runner.Calls())
	assert.Empty(t, f.runner.phaseErrs)
}

func TestRapidTogglesNeverOverlap(t *testing.T) {
	f := newFixture(t)
	f.runner.release = make(chan struct{})
	ctx := context.Background()

	require.NoError(t, f.loop.UpdateConfig(ctx, active()))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg := inactive()
			cfg.IsActive = i%2 == 0
			assert.NoError(t, f.loop.UpdateConfig(ctx, cfg))
		}(i)
	}
	wg.Wait()
	require.NoError(t, f.loop.UpdateConfig(ctx, active()))

	close(f.runner.release)
	f.loop.wg.Wait()

	assert.Equal(t, 1, f.runner.Calls())
	assert.Equal(t, int32(1), f.runner.maxInFlight.Load())
	assert.Empty(t, f.runner.phaseErrs)
	assert.Equal(t, []time.Duration{60 * time.Minute}, f.sched.Pending())
}

func TestDeactivateCancelsPendingRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.loop.UpdateConfig(ctx, active()))
	f.loop.wg.Wait()
	require.Len(t, f.sched.Pending(), 1)

	require.NoError(t, f.loop.UpdateConfig(ctx, inactive()))
	assert.Empty(t, f.sched.Pending())
	assert.True(t, f.st.NextRun().IsZero())
	assert.Equal(t, types.PhaseIdle, f.loop.CurrentPhase())

	assert.Zero(t, f.sched.Fire())
	assert.Equal(t, 1, f.runner.Calls())
}

func TestDeactivateDuringRunLetsItFinish(t *testing.T) {
	f := newFixture(t)
	f.runner.release = make(chan struct{})
	ctx := context.Background()

	require.NoError(t, f.loop.UpdateConfig(ctx, active()))
	require.Eventually(t, func() bool { return f.loop.CurrentPhase() == types.PhaseScanningTrends }, time.Second, time.Millisecond)
	require.NoError(t, f.loop.UpdateConfig(ctx, inactive()))
	assert.Equal(t, types.PhaseScanningTrends, f.loop.CurrentPhase())

	close(f.runner.release)
	f.loop.wg.Wait()

	assert.Equal(t, 1, f.runner.Calls())
	assert.Empty(t, f.sched.Pending())
	assert.Equal(t, types.PhaseIdle, f.loop.CurrentPhase())
}

func TestAbortResumesWithBackoff(t *testing.T) {
	f := newFixture(t)
	f.runner.setFail(errors.New("trend scan failed"))
	ctx := context.Background()

	require.NoError(t, f.loop.UpdateConfig(ctx, active()))
	f.loop.wg.Wait()
	assert.Equal(t, types.PhaseIdle, f.loop.CurrentPhase())
	assert.Equal(t, []time.Duration{time.Minute}, f.sched.Pending())

	f.sched.Fire()
	f.loop.wg.Wait()
	assert.Equal(t, []time.Duration{2 * time.Minute}, f.sched.Pending())

	f.runner.setFail(nil)
	f.sched.Fire()
	f.loop.wg.Wait()
	assert.Equal(t, []time.Duration{60 * time.Minute}, f.sched.Pending())
	assert.Equal(t, 3, f.runner.Calls())
}

func TestAbortWithoutResumeToggleStops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.SaveFeatures(ctx, types.FeatureToggles{HighQualityImages: true, ResumeOnAbort: false}))
	f.runner.setFail(errors.New("content failed"))

	require.NoError(t, f.loop.UpdateConfig(ctx, active()))
	f.loop.wg.Wait()

	assert.Empty(t, f.sched.Pending())
	assert.Equal(t, types.PhaseIdle, f.loop.CurrentPhase())
	assert.True(t, f.st.Config().IsActive)
}

func TestReactivateAfterStalledAbortRunsAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.SaveFeatures(ctx, types.FeatureToggles{ResumeOnAbort: false}))
	f.runner.setFail(errors.New("content failed"))

	require.NoError(t, f.loop.UpdateConfig(ctx, active()))
	f.loop.wg.Wait()
	require.Empty(t, f.sched.Pending())

	f.runner.setFail(nil)
	require.NoError(t, f.loop.SetActive(ctx, true))
	f.loop.wg.Wait()

	assert.Equal(t, 2, f.runner.Calls())
	assert.Equal(t, []time.Duration{60 * time.Minute}, f.sched.Pending())
}

func TestConcurrentTogglesPersistLiveConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(on bool) {
			defer wg.Done()
			_ = f.loop.SetActive(ctx, on)
		}(i%2 == 0)
	}
	wg.Wait()
	f.loop.wg.Wait()

	saved, found, err := f.repo.LoadConfig(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, f.st.Config(), saved)
	assert.LessOrEqual(t, f.runner.maxInFlight.Load(), int32(1))
}

type failingSaves struct {
	*store.Repository
}

func (failingSaves) SaveConfig(context.Context, types.CycleConfig) error {
	return errors.New("disk full")
}

func TestUpdateConfigSaveFailureKeepsLiveConfig(t *testing.T) {
	st := state.NewManager(inactive())
	runner := &fakeRunner{st: st}
	loop := NewLoop(runner, failingSaves{store.NewRepository(store.NewMemory(), "test:")}, st,
		WithScheduler(&ManualScheduler{}))
	t.Cleanup(func() { _ = loop.Shutdown(context.Background()) })

	err := loop.SetActive(context.Background(), true)
	require.Error(t, err)
	assert.False(t, st.Config().IsActive)
	assert.Zero(t, runner.Calls())
}

func TestIntervalChangeReschedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.loop.UpdateConfig(ctx, active()))
	f.loop.wg.Wait()

	cfg := active()
	cfg.IntervalMinutes = 5
	require.NoError(t, f.loop.UpdateConfig(ctx, cfg))
	assert.Equal(t, []time.Duration{5 * time.Minute}, f.sched.Pending())
	assert.Equal(t, 1, f.runner.Calls())
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.loop.UpdateConfig(ctx, types.CycleConfig{TopicNiche: "AI", IntervalMinutes: 0, IsActive: true})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, found, err := f.repo.LoadConfig(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, f.runner.Calls())
}

func TestStartRestoresPersistedConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	persisted := active()
	persisted.TopicNiche = "Space"
	require.NoError(t, f.repo.SaveConfig(ctx, persisted))

	require.NoError(t, f.loop.Start(ctx))
	f.loop.wg.Wait()

	assert.Equal(t, "Space", f.st.Config().TopicNiche)
	assert.Equal(t, 1, f.runner.Calls())
}

func TestShutdownCancelsStuckCycle(t *testing.T) {
	f := newFixture(t)
	f.runner.release = make(chan struct{})
	require.NoError(t, f.loop.UpdateConfig(context.Background(), active()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.loop.Shutdown(ctx), context.DeadlineExceeded)
	assert.ErrorIs(t, f.loop.UpdateConfig(context.Background(), active()), ErrClosed)
}

func TestAbortBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, abortBackoff(1, time.Hour))
	assert.Equal(t, 4*time.Minute, abortBackoff(3, time.Hour))
	assert.Equal(t, 5*time.Minute, abortBackoff(10, 5*time.Minute))
}
