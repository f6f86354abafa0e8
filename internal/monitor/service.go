// Package monitor is the facade the presentation layer talks to: endpoint
// edits, interval changes, start/stop/snooze and the read model.
package monitor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/alarm"
	"github.com/hamed0406/uptimealarm/internal/domain"
	"github.com/hamed0406/uptimealarm/internal/repo"
	"github.com/hamed0406/uptimealarm/internal/scheduler"
)

type Service struct {
	log   *zap.Logger
	state *repo.State
	sched *scheduler.Scheduler
	alarm *alarm.Machine

	mu   sync.Mutex
	subs map[int]func(domain.Snapshot)
	next int
}

func NewService(log *zap.Logger, state *repo.State, sched *scheduler.Scheduler, al *alarm.Machine) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		log:   log,
		state: state,
		sched: sched,
		alarm: al,
		subs:  map[int]func(domain.Snapshot){},
	}
	if sched != nil {
		sched.Observe(s.Publish)
	}
	if al != nil {
		al.OnChange(func(alarm.State) { s.Publish() })
	}
	return s
}

// AddEndpoint validates raw and appends it to the endpoint list.
func (s *Service) AddEndpoint(ctx context.Context, raw string) (string, error) {
	var added string
	err := s.state.Update(func() error {
		list, err := s.state.Endpoints(ctx)
		if err != nil {
			return err
		}
		next, u, err := domain.AddEndpoint(list, raw)
		if err != nil {
			return err
		}
		added = u
		return s.state.SetEndpoints(ctx, next)
	})
	if err != nil {
		return "", err
	}
	s.log.Info("endpoint_added", zap.String("url", added))
	s.Publish()
	return added, nil
}

// RemoveEndpoint drops url and its status. The alarm is re-evaluated since
// the removed endpoint may have been the only failing one.
func (s *Service) RemoveEndpoint(ctx context.Context, url string) error {
	err := s.state.Update(func() error {
		list, err := s.state.Endpoints(ctx)
		if err != nil {
			return err
		}
		next, err := domain.RemoveEndpoint(list, url)
		if err != nil {
			return err
		}
		if err := s.state.SetEndpoints(ctx, next); err != nil {
			return err
		}
		statuses, err := s.state.Statuses(ctx)
		if err != nil {
			return err
		}
		kept := statuses[:0]
		for _, st := range statuses {
			if st.URL != url {
				kept = append(kept, st)
			}
		}
		return s.state.SetStatuses(ctx, kept)
	})
	if err != nil {
		return err
	}
	s.log.Info("endpoint_removed", zap.String("url", url))
	if s.sched != nil {
		s.sched.Reevaluate(ctx)
	}
	s.Publish()
	return nil
}

func (s *Service) SetInterval(ctx context.Context, seconds int) error {
	return s.sched.SetInterval(ctx, seconds)
}

// SetIntervalText parses user input before applying it.
func (s *Service) SetIntervalText(ctx context.Context, raw string) error {
	n, err := domain.ParseInterval(raw)
	if err != nil {
		return err
	}
	return s.SetInterval(ctx, n)
}

func (s *Service) Start(ctx context.Context) error { return s.sched.Start(ctx) }

func (s *Service) Stop(ctx context.Context) error { return s.sched.Stop(ctx) }

// Snooze silences a sounding alarm until the failure clears.
func (s *Service) Snooze() alarm.State {
	if s.alarm == nil {
		return alarm.Idle
	}
	return s.alarm.Snooze()
}

// Snapshot reads the current state. Read errors are logged and the
// affected field keeps its default.
func (s *Service) Snapshot(ctx context.Context) domain.Snapshot {
	snap := domain.Snapshot{
		Endpoints:     []string{},
		Statuses:      []domain.EndpointStatus{},
		IntervalValue: domain.DefaultIntervalSeconds,
		Alarm:         alarm.Idle.String(),
	}
	var err error
	if snap.Endpoints, err = s.state.Endpoints(ctx); err != nil {
		s.log.Warn("snapshot_read_error", zap.String("field", "endpoints"), zap.Error(err))
	}
	if snap.Statuses, err = s.state.Statuses(ctx); err != nil {
		s.log.Warn("snapshot_read_error", zap.String("field", "statuses"), zap.Error(err))
	}
	if snap.IntervalValue, err = s.state.Interval(ctx); err != nil {
		s.log.Warn("snapshot_read_error", zap.String("field", "interval"), zap.Error(err))
	}
	if snap.IsMonitoring, err = s.state.Monitoring(ctx); err != nil {
		s.log.Warn("snapshot_read_error", zap.String("field", "monitoring"), zap.Error(err))
	}
	snap.HasFailures = domain.HasFailures(snap.Statuses)
	if s.alarm != nil {
		snap.Alarm = s.alarm.State().String()
	}
	return snap
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function removes it.
func (s *Service) Subscribe(fn func(domain.Snapshot)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Publish pushes the current snapshot to every subscriber.
func (s *Service) Publish() {
	s.mu.Lock()
	fns := make([]func(domain.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	if len(fns) == 0 {
		return
	}
	snap := s.Snapshot(context.Background())
	for _, fn := range fns {
		fn(snap)
	}
}
