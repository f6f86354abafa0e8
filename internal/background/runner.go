package background

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/pipeline"
	"github.com/hamed0406/uptimealarm/internal/repo"
)

// Runner performs one monitoring cycle against the durable store only.
type Runner struct {
	Logger *zap.Logger
	State  *repo.State
	Prober pipeline.Prober
}

func NewRunner(logger *zap.Logger, durable repo.KV, prober pipeline.Prober) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Logger: logger, State: repo.NewState(durable, logger), Prober: prober}
}

// Run never panics and never retries; the host owns retry policy.
func (r *Runner) Run(ctx context.Context) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.Logger.Error("background_panic", zap.String("panic", fmt.Sprint(p)))
			out = Failed
		}
	}()

	ms, err := r.State.MonitoringState(ctx)
	if err != nil {
		r.Logger.Warn("background_read_error", zap.Error(err))
		return Failed
	}
	if !ms.IsMonitoring {
		r.Logger.Info("background_skipped", zap.String("reason", "monitoring_off"))
		return NoData
	}

	res, err := pipeline.RunCycle(ctx, r.State, r.Prober, ms.Interval())
	if err != nil {
		r.Logger.Warn("background_cycle_error", zap.Error(err))
		return Failed
	}
	if res.Skipped {
		r.Logger.Info("background_skipped", zap.String("reason", "no_endpoints"))
		return NoData
	}
	if !res.Applied {
		r.Logger.Info("background_batch_discarded", zap.String("tick_id", res.Tick.ID))
		return NoData
	}
	r.Logger.Info("background_cycle_done",
		zap.String("tick_id", res.Tick.ID),
		zap.Int("endpoints", len(res.Statuses)),
	)
	return NewData
}
