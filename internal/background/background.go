// Package background runs monitoring cycles outside the API process.
//
// A host timer (cron, a systemd timer, a mobile OS task scheduler...)
// invokes the registered task; the task reads and writes nothing but the
// durable store.
package background

import (
	"context"
	"time"
)

// MinimumInterval is the floor for re-invocation requested from the host.
const MinimumInterval = 60 * time.Second

// TaskName identifies the monitoring task.
const TaskName = "endpoint-monitor"

type Outcome int

const (
	NoData Outcome = iota
	NewData
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NoData:
		return "no-data"
	case NewData:
		return "new-data"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Registration asks the host to invoke a task periodically.
type Registration struct {
	Name            string        `json:"name"`
	MinInterval     time.Duration `json:"minInterval"`
	StopOnTerminate bool          `json:"stopOnTerminate"`
	StartOnBoot     bool          `json:"startOnBoot"`
	RegisteredAt    time.Time     `json:"registeredAt"`
	LastRunAt       *time.Time    `json:"lastRunAt,omitempty"`
	LastOutcome     string        `json:"lastOutcome,omitempty"`
}

// MonitorRegistration is the registration for the monitoring task. The
// requested interval never drops below MinimumInterval.
func MonitorRegistration(foreground time.Duration) Registration {
	iv := foreground
	if iv < MinimumInterval {
		iv = MinimumInterval
	}
	return Registration{
		Name:            TaskName,
		MinInterval:     iv,
		StopOnTerminate: false,
		StartOnBoot:     true,
	}
}

// Facility is the host's background-execution service.
type Facility interface {
	Register(ctx context.Context, r Registration) error
	Unregister(ctx context.Context, name string) error
}
