package probe

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/domain"
)

// fallbackError is recorded when a failed check carries no message.
const fallbackError = "unknown error"

// Prober turns one check into an EndpointStatus, merging with the
// previously recorded status.
type Prober struct {
	Checker Checker
	Logger  *zap.Logger
	Now     func() time.Time
}

func NewProber(logger *zap.Logger, checker Checker) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{Checker: checker, Logger: logger, Now: time.Now}
}

// Probe never fails: transport errors and non-2xx answers come back as
// IsUp=false with Error set.
//
// A still-up endpoint keeps its previous record and only LastChecked
// moves. Any failure, and any up/down change, yields a fresh record.
func (p *Prober) Probe(ctx context.Context, url string, prev *domain.EndpointStatus) domain.EndpointStatus {
	out := p.Checker.Check(ctx, url)
	now := p.Now().UTC()

	p.Logger.Debug("probe_checked",
		zap.String("url", url),
		zap.Bool("up", out.Success),
		zap.Int("status", out.StatusCode),
		zap.Float64("latency_ms", out.LatencyMS),
		zap.String("reason", out.Message),
	)

	if out.Success {
		if prev != nil && prev.IsUp {
			kept := *prev
			kept.URL = url
			kept.LastChecked = &now
			return kept
		}
		return domain.EndpointStatus{URL: url, IsUp: true, LastChecked: &now}
	}

	msg := out.Message
	if msg == "" {
		msg = fallbackError
	}
	return domain.EndpointStatus{URL: url, IsUp: false, LastChecked: &now, Error: &msg}
}
