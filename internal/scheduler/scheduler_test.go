package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/alarm"
	"github.com/hamed0406/uptimealarm/internal/background"
	"github.com/hamed0406/uptimealarm/internal/domain"
	"github.com/hamed0406/uptimealarm/internal/repo"
	"github.com/hamed0406/uptimealarm/internal/repo/memory"
)

// --- fakes ---

// manualTicker hands out one channel per armed timer and records periods.
type manualTicker struct {
	mu      sync.Mutex
	periods []time.Duration
	chans   []chan time.Time
	stopped []bool
}

func (m *manualTicker) New(d time.Duration) (<-chan time.Time, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := make(chan time.Time)
	idx := len(m.chans)
	m.periods = append(m.periods, d)
	m.chans = append(m.chans, c)
	m.stopped = append(m.stopped, false)
	return c, func() {
		m.mu.Lock()
		m.stopped[idx] = true
		m.mu.Unlock()
	}
}

// fire delivers one tick to the most recently armed timer and reports
// whether a loop received it.
func (m *manualTicker) fire() bool {
	m.mu.Lock()
	c := m.chans[len(m.chans)-1]
	m.mu.Unlock()
	select {
	case c <- time.Now():
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

func (m *manualTicker) last() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.periods[len(m.periods)-1]
}

func (m *manualTicker) armed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chans)
}

type scriptedProber struct {
	mu    sync.Mutex
	up    map[string]bool
	calls int
	gate  chan struct{}
}

func (p *scriptedProber) set(url string, up bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.up[url] = up
}

func (p *scriptedProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedProber) Probe(ctx context.Context, url string, prev *domain.EndpointStatus) domain.EndpointStatus {
	p.mu.Lock()
	p.calls++
	up := p.up[url]
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	now := time.Now().UTC()
	if up {
		return domain.EndpointStatus{URL: url, IsUp: true, LastChecked: &now}
	}
	msg := "unexpected status 500 Internal Server Error"
	return domain.EndpointStatus{URL: url, LastChecked: &now, Error: &msg}
}

type fakeFacility struct {
	mu    sync.Mutex
	regs  []background.Registration
	unreg int
}

func (f *fakeFacility) Register(_ context.Context, r background.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs = append(f.regs, r)
	return nil
}

func (f *fakeFacility) Unregister(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreg++
	return nil
}

type fixture struct {
	state    *repo.State
	prober   *scriptedProber
	ticker   *manualTicker
	alarm    *alarm.Machine
	facility *fakeFacility
	sched    *Scheduler
}

func newFixture(t *testing.T, endpoints ...string) *fixture {
	t.Helper()
	f := &fixture{
		state:    repo.NewState(memory.New(), nil),
		prober:   &scriptedProber{up: map[string]bool{}},
		ticker:   &manualTicker{},
		alarm:    alarm.NewMachine(zap.NewNop(), nil, nil),
		facility: &fakeFacility{},
	}
	require.NoError(t, f.state.SetEndpoints(context.Background(), endpoints))
	f.sched = New(zap.NewNop(), f.state, f.prober, f.alarm,
		WithTicker(f.ticker.New),
		WithFacility(f.facility),
	)
	t.Cleanup(f.sched.Close)
	return f
}

func (f *fixture) statuses(t *testing.T) []domain.EndpointStatus {
	t.Helper()
	s, err := f.state.Statuses(context.Background())
	require.NoError(t, err)
	return s
}

// --- tests ---

func TestStart_ImmediateCycleThenTimer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	f.prober.set("https://a", true)

	require.NoError(t, f.sched.Start(ctx))
	require.True(t, f.sched.Running())
	require.Equal(t, 1, f.prober.count(), "immediate cycle on start")
	require.Equal(t, 5*time.Second, f.ticker.last())

	on, _ := f.state.Monitoring(ctx)
	require.True(t, on, "monitoring flag persisted")

	require.True(t, f.ticker.fire())
	require.Eventually(t, func() bool { return f.prober.count() == 2 }, time.Second, 5*time.Millisecond)

	require.Len(t, f.facility.regs, 1)
	require.Equal(t, background.MinimumInterval, f.facility.regs[0].MinInterval)
}

func TestStart_Twice_DoesNotRearm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	require.NoError(t, f.sched.Start(ctx))
	require.NoError(t, f.sched.Start(ctx))
	require.Equal(t, 1, f.ticker.armed())
}

func TestTick_NoEndpointsDoesNotProbe(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.Start(context.Background()))
	require.Zero(t, f.prober.count())
	require.Empty(t, f.statuses(t))
}

func TestSetInterval_RejectsBelowMinimum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	require.NoError(t, f.state.SetInterval(ctx, 30))

	err := f.sched.SetInterval(ctx, 3)
	require.ErrorIs(t, err, domain.ErrInvalidInterval)

	iv, _ := f.state.Interval(ctx)
	require.Equal(t, 30, iv)
	eps, _ := f.state.Endpoints(ctx)
	require.Equal(t, []string{"https://a"}, eps)
}

func TestSetInterval_RearmsAtNewPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	require.NoError(t, f.state.SetInterval(ctx, 60))
	require.NoError(t, f.sched.Start(ctx))
	require.Equal(t, 60*time.Second, f.ticker.last())

	require.NoError(t, f.sched.SetInterval(ctx, 5))
	require.Equal(t, 2, f.ticker.armed())
	require.Equal(t, 5*time.Second, f.ticker.last())
	require.Equal(t, 5*time.Second, f.sched.Interval())

	iv, _ := f.state.Interval(ctx)
	require.Equal(t, 5, iv)

	on, _ := f.state.Monitoring(ctx)
	require.True(t, on, "interval change must not toggle monitoring")

	// the old timer loop is gone
	require.Eventually(t, func() bool {
		f.ticker.mu.Lock()
		defer f.ticker.mu.Unlock()
		return f.ticker.stopped[0]
	}, time.Second, 5*time.Millisecond)

	before := f.prober.count()
	require.True(t, f.ticker.fire())
	require.Eventually(t, func() bool { return f.prober.count() == before+1 }, time.Second, 5*time.Millisecond)
}

func TestSetInterval_WhileStoppedOnlyPersists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	require.NoError(t, f.sched.SetInterval(ctx, 10))
	require.Zero(t, f.ticker.armed())
	require.Zero(t, f.prober.count())

	require.NoError(t, f.sched.Start(ctx))
	require.Equal(t, 10*time.Second, f.ticker.last())
}

func TestStop_SilencesAndUnregisters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://b")
	require.NoError(t, f.sched.Start(ctx))
	require.Equal(t, alarm.Sounding, f.alarm.State())

	require.NoError(t, f.sched.Stop(ctx))
	require.Equal(t, alarm.Idle, f.alarm.State())
	require.False(t, f.sched.Running())
	require.Equal(t, 1, f.facility.unreg)

	on, _ := f.state.Monitoring(ctx)
	require.False(t, on)

	require.NoError(t, f.sched.Start(ctx))
	require.Equal(t, alarm.Sounding, f.alarm.State(), "restart with same failure re-sounds")
}

func TestTick_RisingEdgeOnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	f.prober.set("https://a", true)
	var transitions []alarm.State
	f.alarm.OnChange(func(s alarm.State) { transitions = append(transitions, s) })

	require.NoError(t, f.sched.Start(ctx))
	require.Equal(t, alarm.Idle, f.alarm.State())

	f.prober.set("https://a", false)
	for i := 0; i < 3; i++ {
		require.True(t, f.sched.Tick(ctx))
	}
	require.Equal(t, []alarm.State{alarm.Sounding}, transitions)
}

func TestTick_SnoozeThenRecurrence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	require.NoError(t, f.sched.Start(ctx))
	require.Equal(t, alarm.Sounding, f.alarm.State())

	f.alarm.Snooze()
	f.sched.Tick(ctx)
	f.sched.Tick(ctx)
	require.Equal(t, alarm.Snoozed, f.alarm.State())

	f.prober.set("https://a", true)
	f.sched.Tick(ctx)
	require.Equal(t, alarm.Idle, f.alarm.State())

	f.prober.set("https://a", false)
	f.sched.Tick(ctx)
	require.Equal(t, alarm.Sounding, f.alarm.State())
}

func TestTick_NoOverlap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	gate := make(chan struct{})
	f.prober.gate = gate

	done := make(chan bool)
	go func() { done <- f.sched.Tick(ctx) }()
	require.Eventually(t, func() bool { return f.prober.count() == 1 }, time.Second, 5*time.Millisecond)

	require.False(t, f.sched.Tick(ctx), "second tick must be skipped while first is in flight")
	close(gate)
	require.True(t, <-done)
	require.Equal(t, 1, f.prober.count())
}

func TestStop_InFlightBatchIsWrittenButDoesNotResume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	require.NoError(t, f.sched.Start(ctx))

	gate := make(chan struct{})
	f.prober.mu.Lock()
	f.prober.gate = gate
	f.prober.mu.Unlock()

	require.True(t, f.ticker.fire())
	require.Eventually(t, func() bool { return f.prober.count() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.sched.Stop(ctx))
	close(gate)

	require.Eventually(t, func() bool {
		f.ticker.mu.Lock()
		defer f.ticker.mu.Unlock()
		return f.ticker.stopped[0]
	}, time.Second, 5*time.Millisecond)
	require.False(t, f.sched.Running())
	require.Equal(t, 1, f.ticker.armed())
	require.Len(t, f.statuses(t), 1)
	require.Equal(t, alarm.Idle, f.alarm.State(), "late batch after stop must not sound")
}

func TestResume_OnlyWhenPersistedOn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	require.NoError(t, f.sched.Resume(ctx))
	require.False(t, f.sched.Running())

	require.NoError(t, f.state.SetMonitoring(ctx, true))
	require.NoError(t, f.sched.Resume(ctx))
	require.True(t, f.sched.Running())
}

func TestObserverCalledAfterTick(t *testing.T) {
	ctx := context.Background()
	state := repo.NewState(memory.New(), nil)
	_ = state.SetEndpoints(ctx, []string{"https://a"})
	var mu sync.Mutex
	calls := 0
	s := New(nil, state, &scriptedProber{up: map[string]bool{}}, nil,
		WithTicker((&manualTicker{}).New),
		WithObserver(func() { mu.Lock(); calls++; mu.Unlock() }),
	)
	defer s.Close()

	s.Tick(ctx)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}

func TestRegister_HonoursBackgroundInterval(t *testing.T) {
	ctx := context.Background()
	state := repo.NewState(memory.New(), nil)
	fac := &fakeFacility{}
	s := New(nil, state, &scriptedProber{up: map[string]bool{}}, nil,
		WithTicker((&manualTicker{}).New),
		WithFacility(fac),
		WithBackgroundInterval(5*time.Minute),
	)
	defer s.Close()

	require.NoError(t, s.Start(ctx))
	require.Len(t, fac.regs, 1)
	require.Equal(t, 5*time.Minute, fac.regs[0].MinInterval)
	require.True(t, fac.regs[0].StartOnBoot)
	require.False(t, fac.regs[0].StopOnTerminate)
}

// pausingKV blocks the first read of the monitoring flag after it has been
// taken from the store, until release is closed.
type pausingKV struct {
	repo.KV
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (p *pausingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := p.KV.Get(ctx, key)
	if key == repo.KeyMonitoring {
		p.once.Do(func() {
			close(p.reached)
			<-p.release
		})
	}
	return v, ok, err
}

func TestStop_WinsOverConcurrentEvaluation(t *testing.T) {
	ctx := context.Background()
	kv := &pausingKV{KV: memory.New(), reached: make(chan struct{}), release: make(chan struct{})}
	state := repo.NewState(kv, nil)
	msg := "unexpected status 500 Internal Server Error"
	require.NoError(t, state.SetEndpoints(ctx, []string{"https://a"}))
	require.NoError(t, state.SetStatuses(ctx, []domain.EndpointStatus{{URL: "https://a", Error: &msg}}))
	require.NoError(t, state.SetMonitoring(ctx, true))

	machine := alarm.NewMachine(zap.NewNop(), nil, nil)
	s := New(zap.NewNop(), state, &scriptedProber{up: map[string]bool{}}, machine,
		WithTicker((&manualTicker{}).New),
	)
	defer s.Close()

	evalDone := make(chan struct{})
	go func() {
		defer close(evalDone)
		s.Reevaluate(ctx)
	}()
	<-kv.reached // flag read as true, evaluation not applied yet

	stopDone := make(chan struct{})
	go func() {
		defer close(stopDone)
		_ = s.Stop(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	close(kv.release)

	<-evalDone
	<-stopDone

	on, _ := state.Monitoring(ctx)
	require.False(t, on)
	require.False(t, s.Running())
	require.Equal(t, alarm.Idle, machine.State(), "alarm must be idle after Stop")
}
