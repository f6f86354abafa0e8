package background

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/repo"
)

// KeyRegistrations holds the registered tasks in the durable store.
const KeyRegistrations = "background_tasks"

// Registry is a Facility that persists registrations in the durable store
// so they survive restarts, and rate-limits invocations to each task's
// MinInterval.
type Registry struct {
	kv  repo.KV
	log *zap.Logger
	now func() time.Time
	mu  sync.Mutex
}

func NewRegistry(kv repo.KV, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{kv: kv, log: log, now: time.Now}
}

func (r *Registry) load(ctx context.Context) (map[string]Registration, error) {
	raw, ok, err := r.kv.Get(ctx, KeyRegistrations)
	if err != nil {
		return nil, fmt.Errorf("read registrations: %w", err)
	}
	regs := map[string]Registration{}
	if !ok {
		return regs, nil
	}
	if err := json.Unmarshal(raw, &regs); err != nil {
		r.log.Warn("background_registrations_malformed", zap.Error(err))
		return map[string]Registration{}, nil
	}
	return regs, nil
}

func (r *Registry) save(ctx context.Context, regs map[string]Registration) error {
	b, err := json.Marshal(regs)
	if err != nil {
		return fmt.Errorf("encode registrations: %w", err)
	}
	return r.kv.Set(ctx, KeyRegistrations, b)
}

// Register adds or updates a task. Run history is kept across updates.
func (r *Registry) Register(ctx context.Context, reg Registration) error {
	if reg.MinInterval < MinimumInterval {
		reg.MinInterval = MinimumInterval
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	regs, err := r.load(ctx)
	if err != nil {
		return err
	}
	if old, ok := regs[reg.Name]; ok {
		reg.RegisteredAt = old.RegisteredAt
		reg.LastRunAt = old.LastRunAt
		reg.LastOutcome = old.LastOutcome
	} else {
		reg.RegisteredAt = r.now().UTC()
	}
	regs[reg.Name] = reg
	if err := r.save(ctx, regs); err != nil {
		return err
	}
	r.log.Info("background_registered",
		zap.String("task", reg.Name),
		zap.Duration("min_interval", reg.MinInterval),
		zap.Bool("stop_on_terminate", reg.StopOnTerminate),
		zap.Bool("start_on_boot", reg.StartOnBoot),
	)
	return nil
}

func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs, err := r.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := regs[name]; !ok {
		return nil
	}
	delete(regs, name)
	if err := r.save(ctx, regs); err != nil {
		return err
	}
	r.log.Info("background_unregistered", zap.String("task", name))
	return nil
}

// Lookup returns the registration for name, if any.
func (r *Registry) Lookup(ctx context.Context, name string) (Registration, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs, err := r.load(ctx)
	if err != nil {
		return Registration{}, false, err
	}
	reg, ok := regs[name]
	return reg, ok, nil
}

// Invoke runs task on behalf of the host if name is registered and its
// minimum interval has elapsed since the last run. Otherwise it reports
// NoData without running.
func (r *Registry) Invoke(ctx context.Context, name string, task func(context.Context) Outcome) (Outcome, error) {
	reg, ok, err := r.Lookup(ctx, name)
	if err != nil {
		return Failed, err
	}
	if !ok {
		r.log.Info("background_not_registered", zap.String("task", name))
		return NoData, nil
	}
	now := r.now().UTC()
	if reg.LastRunAt != nil && now.Sub(*reg.LastRunAt) < reg.MinInterval {
		r.log.Info("background_rate_limited",
			zap.String("task", name),
			zap.Time("last_run", *reg.LastRunAt),
		)
		return NoData, nil
	}

	out := task(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	regs, err := r.load(ctx)
	if err != nil {
		return out, err
	}
	// unregistered while running
	cur, ok := regs[name]
	if !ok {
		return out, nil
	}
	cur.LastRunAt = &now
	cur.LastOutcome = out.String()
	regs[name] = cur
	return out, r.save(ctx, regs)
}
