package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/alarm"
	"github.com/hamed0406/uptimealarm/internal/background"
	"github.com/hamed0406/uptimealarm/internal/domain"
	"github.com/hamed0406/uptimealarm/internal/pipeline"
	"github.com/hamed0406/uptimealarm/internal/repo"
)

// Alarm is the part of the alarm machine the scheduler drives.
type Alarm interface {
	Evaluate(failure, monitoring bool) alarm.State
	Stop() alarm.State
}

// TickerFunc returns a channel that fires every d and a function that
// releases it.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Option func(*Scheduler)

// WithFacility registers the monitoring task with a background facility
// while monitoring is on.
func WithFacility(f background.Facility) Option {
	return func(s *Scheduler) { s.facility = f }
}

// WithBackgroundInterval raises the interval requested from the facility
// to at least d.
func WithBackgroundInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.bgMin = d }
}

func WithTicker(fn TickerFunc) Option {
	return func(s *Scheduler) { s.newTicker = fn }
}

// WithObserver adds fn to the list called after every completed tick and
// every start/stop/interval change.
func WithObserver(fn func()) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, fn) }
}

// Scheduler owns the recurring check timer.
type Scheduler struct {
	Logger *zap.Logger
	State  *repo.State
	Prober pipeline.Prober
	Alarm  Alarm

	facility  background.Facility
	bgMin     time.Duration
	newTicker TickerFunc
	observers []func()

	mu       sync.Mutex
	running  bool
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	// held for the duration of a tick; a trigger that cannot take it is skipped
	inflight sync.Mutex

	// orders alarm evaluation against Stop's silencing
	evalMu sync.Mutex
}

func New(logger *zap.Logger, state *repo.State, prober pipeline.Prober, al Alarm, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		Logger:    logger,
		State:     state,
		Prober:    prober,
		Alarm:     al,
		newTicker: realTicker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start turns monitoring on, runs one cycle right away and arms the timer.
// Starting an already running scheduler only persists the flag.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.State.SetMonitoring(ctx, true); err != nil {
		s.Logger.Warn("scheduler_persist_error", zap.String("field", "monitoring"), zap.Error(err))
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	iv := s.readInterval(ctx)
	s.running = true
	s.arm(iv)
	s.mu.Unlock()

	s.Logger.Info("scheduler_started", zap.Duration("interval", iv))
	s.register(ctx, iv)
	s.notify()
	s.Tick(context.WithoutCancel(ctx))
	return nil
}

// Resume restarts the timer after a process restart when the persisted
// flag says monitoring was on.
func (s *Scheduler) Resume(ctx context.Context) error {
	on, err := s.State.Monitoring(ctx)
	if err != nil {
		s.Logger.Warn("scheduler_resume_read_error", zap.Error(err))
		return nil
	}
	if !on {
		return nil
	}
	s.Logger.Info("scheduler_resume")
	return s.Start(ctx)
}

// Stop turns monitoring off, disarms the timer and silences the alarm.
// An in-flight tick may still write its batch but never re-arms.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.evalMu.Lock()
	if err := s.State.SetMonitoring(ctx, false); err != nil {
		s.Logger.Warn("scheduler_persist_error", zap.String("field", "monitoring"), zap.Error(err))
	}
	if s.Alarm != nil {
		s.Alarm.Stop()
	}
	s.evalMu.Unlock()

	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.disarm()
	s.mu.Unlock()

	if s.facility != nil {
		if err := s.facility.Unregister(ctx, background.TaskName); err != nil {
			s.Logger.Warn("scheduler_unregister_error", zap.Error(err))
		}
	}
	if wasRunning {
		s.Logger.Info("scheduler_stopped")
	}
	s.notify()
	return nil
}

// SetInterval validates and persists seconds. When running, the timer is
// re-armed at the new period and a cycle runs right away.
func (s *Scheduler) SetInterval(ctx context.Context, seconds int) error {
	if err := domain.ValidateInterval(seconds); err != nil {
		return err
	}
	if err := s.State.SetInterval(ctx, seconds); err != nil {
		s.Logger.Warn("scheduler_persist_error", zap.String("field", "interval"), zap.Error(err))
	}
	iv := time.Duration(seconds) * time.Second

	s.mu.Lock()
	running := s.running
	if running {
		s.disarm()
		s.arm(iv)
	}
	s.mu.Unlock()

	s.Logger.Info("scheduler_interval_set", zap.Int("seconds", seconds), zap.Bool("running", running))
	s.notify()
	if running {
		s.register(ctx, iv)
		s.Tick(context.WithoutCancel(ctx))
	}
	return nil
}

// Close disarms the timer and waits for the loop to exit, leaving the
// persisted monitoring flag untouched so Resume picks it up on next boot.
func (s *Scheduler) Close() {
	s.mu.Lock()
	done := s.done
	s.running = false
	s.disarm()
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Interval is the period of the armed timer, zero when stopped.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return s.interval
}

// Tick runs one probe-and-reconcile cycle unless one is already in flight,
// then re-evaluates the alarm. It reports whether a cycle ran.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.inflight.TryLock() {
		s.Logger.Debug("scheduler_tick_skipped")
		return false
	}
	defer s.inflight.Unlock()

	iv := s.Interval()
	res, err := pipeline.RunCycle(ctx, s.State, s.Prober, iv)
	switch {
	case err != nil:
		s.Logger.Warn("scheduler_cycle_error", zap.Error(err))
	case res.Skipped:
		s.Logger.Debug("scheduler_no_endpoints")
	case !res.Applied:
		s.Logger.Info("scheduler_batch_discarded", zap.String("tick_id", res.Tick.ID))
	default:
		down := 0
		for _, st := range res.Statuses {
			if !st.IsUp {
				down++
			}
		}
		s.Logger.Info("scheduler_tick",
			zap.String("tick_id", res.Tick.ID),
			zap.Int("endpoints", len(res.Statuses)),
			zap.Int("down", down),
		)
	}

	s.Reevaluate(ctx)
	s.notify()
	return true
}

// Reevaluate feeds the current status table and monitoring flag to the
// alarm. A concurrent Stop either runs before the flag is read or after the
// evaluation, so it always has the last word.
func (s *Scheduler) Reevaluate(ctx context.Context) {
	if s.Alarm == nil {
		return
	}
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	statuses, err := s.State.Statuses(ctx)
	if err != nil {
		s.Logger.Warn("scheduler_read_error", zap.Error(err))
		return
	}
	on, err := s.State.Monitoring(ctx)
	if err != nil {
		s.Logger.Warn("scheduler_read_error", zap.Error(err))
		return
	}
	s.Alarm.Evaluate(domain.HasFailures(statuses), on)
}

func (s *Scheduler) readInterval(ctx context.Context) time.Duration {
	n, err := s.State.Interval(ctx)
	if err != nil {
		s.Logger.Warn("scheduler_read_error", zap.Error(err))
	}
	return time.Duration(n) * time.Second
}

// arm starts the timer loop. Caller holds s.mu.
func (s *Scheduler) arm(iv time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c, release := s.newTicker(iv)
	done := make(chan struct{})
	s.interval = iv
	s.cancel = cancel
	s.done = done
	go s.loop(ctx, c, release, done)
}

// disarm stops the timer loop without waiting for an in-flight tick.
// Caller holds s.mu.
func (s *Scheduler) disarm() {
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.done = nil
}

func (s *Scheduler) loop(ctx context.Context, c <-chan time.Time, release func(), done chan struct{}) {
	defer close(done)
	defer release()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c:
			// in-flight probes are not cancelled by Stop
			s.Tick(context.WithoutCancel(ctx))
		}
	}
}

func (s *Scheduler) register(ctx context.Context, iv time.Duration) {
	if s.facility == nil {
		return
	}
	reg := background.MonitorRegistration(iv)
	if reg.MinInterval < s.bgMin {
		reg.MinInterval = s.bgMin
	}
	if err := s.facility.Register(ctx, reg); err != nil {
		s.Logger.Warn("scheduler_register_error", zap.Error(err))
	}
}

// Observe adds fn to the observers after construction.
func (s *Scheduler) Observe(fn func()) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Scheduler) notify() {
	s.mu.Lock()
	fns := append([]func(){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
