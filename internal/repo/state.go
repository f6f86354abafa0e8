package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/domain"
)

// State is the typed view over a KV. Reads fall back to the key's default
// when the value is missing or is not valid JSON.
//
// The write lock serialises read-modify-write sequences (endpoint edits,
// reconcile) issued through the same State.
type State struct {
	kv  KV
	log *zap.Logger
	mu  sync.Mutex
}

func NewState(kv KV, log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	return &State{kv: kv, log: log}
}

func getJSON[T any](ctx context.Context, s *State, key string, def T) (T, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return def, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.log.Warn("store_malformed_value", zap.String("key", key), zap.Error(err))
		return def, nil
	}
	return v, nil
}

func setJSON(ctx context.Context, s *State, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, b); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *State) Endpoints(ctx context.Context) ([]string, error) {
	list, err := getJSON[[]string](ctx, s, KeyEndpoints, nil)
	if list == nil {
		list = []string{}
	}
	return list, err
}

func (s *State) SetEndpoints(ctx context.Context, list []string) error {
	if list == nil {
		list = []string{}
	}
	return setJSON(ctx, s, KeyEndpoints, list)
}

func (s *State) Interval(ctx context.Context) (int, error) {
	n, err := getJSON(ctx, s, KeyInterval, domain.DefaultIntervalSeconds)
	if err == nil && n < domain.MinIntervalSeconds {
		s.log.Warn("store_interval_below_minimum", zap.Int("interval", n))
		n = domain.DefaultIntervalSeconds
	}
	return n, err
}

func (s *State) SetInterval(ctx context.Context, seconds int) error {
	return setJSON(ctx, s, KeyInterval, seconds)
}

func (s *State) Monitoring(ctx context.Context) (bool, error) {
	return getJSON(ctx, s, KeyMonitoring, false)
}

func (s *State) SetMonitoring(ctx context.Context, on bool) error {
	return setJSON(ctx, s, KeyMonitoring, on)
}

func (s *State) Statuses(ctx context.Context) ([]domain.EndpointStatus, error) {
	list, err := getJSON[[]domain.EndpointStatus](ctx, s, KeyStatuses, nil)
	if list == nil {
		list = []domain.EndpointStatus{}
	}
	return list, err
}

func (s *State) SetStatuses(ctx context.Context, list []domain.EndpointStatus) error {
	if list == nil {
		list = []domain.EndpointStatus{}
	}
	return setJSON(ctx, s, KeyStatuses, list)
}

// Seeded reports whether the first-run seed has been handled.
func (s *State) Seeded(ctx context.Context) (bool, error) {
	return getJSON(ctx, s, KeySeeded, false)
}

func (s *State) MarkSeeded(ctx context.Context) error {
	return setJSON(ctx, s, KeySeeded, true)
}

func (s *State) MonitoringState(ctx context.Context) (domain.MonitoringState, error) {
	on, err := s.Monitoring(ctx)
	if err != nil {
		return domain.MonitoringState{}, err
	}
	iv, err := s.Interval(ctx)
	if err != nil {
		return domain.MonitoringState{}, err
	}
	return domain.MonitoringState{IsMonitoring: on, IntervalSeconds: iv}, nil
}

// Update runs fn while holding the write lock.
func (s *State) Update(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Delete removes key so the next read yields its default.
func (s *State) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}
