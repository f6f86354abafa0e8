// Package pipeline is the probe-and-reconcile cycle shared by the
// foreground scheduler and the background runner.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/uptimealarm/internal/domain"
)

// Prober checks one endpoint and never fails.
type Prober interface {
	Probe(ctx context.Context, url string, prev *domain.EndpointStatus) domain.EndpointStatus
}

// Store is the storage accessor a cycle runs against. *repo.State
// satisfies it for both the write-through foreground store and the durable
// store used in the background.
type Store interface {
	Endpoints(ctx context.Context) ([]string, error)
	Statuses(ctx context.Context) ([]domain.EndpointStatus, error)
	SetStatuses(ctx context.Context, list []domain.EndpointStatus) error
	Update(fn func() error) error
}

// TickConfig is the immutable input of one cycle.
type TickConfig struct {
	ID        string
	Endpoints []string
	Interval  time.Duration
	StartedAt time.Time
}

func NewTick(endpoints []string, interval time.Duration) TickConfig {
	return TickConfig{
		ID:        uuid.NewString(),
		Endpoints: append([]string(nil), endpoints...),
		Interval:  interval,
		StartedAt: time.Now().UTC(),
	}
}

// Batch is the result of probing every endpoint of a tick, in endpoint order.
type Batch struct {
	Tick    TickConfig
	Results []domain.EndpointStatus
}

// ProbeAll probes every endpoint concurrently and returns when all are done.
// A panicking prober yields a down status for its endpoint only.
func ProbeAll(ctx context.Context, p Prober, tick TickConfig, prev []domain.EndpointStatus) Batch {
	results := make([]domain.EndpointStatus, len(tick.Endpoints))
	var wg sync.WaitGroup
	for i, url := range tick.Endpoints {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					now := time.Now().UTC()
					msg := fmt.Sprintf("probe panic: %v", r)
					results[i] = domain.EndpointStatus{URL: url, LastChecked: &now, Error: &msg}
				}
			}()
			results[i] = p.Probe(ctx, url, domain.StatusFor(prev, url))
		}(i, url)
	}
	wg.Wait()
	return Batch{Tick: tick, Results: results}
}

// Reconcile replaces the status table with a non-empty batch. The batch is
// discarded when the configured endpoint set changed while it was in
// flight, so a removed endpoint is never written back.
func Reconcile(ctx context.Context, store Store, batch Batch) (applied bool, err error) {
	if len(batch.Results) == 0 {
		return false, nil
	}
	err = store.Update(func() error {
		current, err := store.Endpoints(ctx)
		if err != nil {
			return err
		}
		if !domain.SameEndpoints(current, batch.Tick.Endpoints) {
			return nil
		}
		if err := store.SetStatuses(ctx, batch.Results); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reconcile: %w", err)
	}
	return applied, nil
}

// Outcome summarises one RunCycle call.
type Outcome struct {
	Tick     TickConfig
	Skipped  bool // no endpoints configured
	Applied  bool
	Statuses []domain.EndpointStatus
}

// RunCycle reads the endpoint set, probes it and reconciles the batch.
func RunCycle(ctx context.Context, store Store, p Prober, interval time.Duration) (Outcome, error) {
	endpoints, err := store.Endpoints(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("read endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return Outcome{Skipped: true}, nil
	}
	prev, err := store.Statuses(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("read statuses: %w", err)
	}

	tick := NewTick(endpoints, interval)
	batch := ProbeAll(ctx, p, tick, prev)
	applied, err := Reconcile(ctx, store, batch)
	if err != nil {
		return Outcome{Tick: tick}, err
	}
	return Outcome{Tick: tick, Applied: applied, Statuses: batch.Results}, nil
}
