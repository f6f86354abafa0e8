package domain

import "time"

// DefaultIntervalSeconds is used until the user picks another interval.
const DefaultIntervalSeconds = 5

// MinIntervalSeconds is the smallest accepted polling interval.
const MinIntervalSeconds = 5

// EndpointStatus is the last known state of one monitored URL.
// Error is set only when IsUp is false.
type EndpointStatus struct {
	URL         string     `json:"url"`
	IsUp        bool       `json:"isUp"`
	LastChecked *time.Time `json:"lastChecked"`
	Error       *string    `json:"error"`
}

type MonitoringState struct {
	IsMonitoring    bool `json:"isMonitoring"`
	IntervalSeconds int  `json:"intervalSeconds"`
}

func (m MonitoringState) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// Snapshot is the read model handed to the presentation layer.
type Snapshot struct {
	Endpoints     []string         `json:"endpoints"`
	Statuses      []EndpointStatus `json:"statuses"`
	IntervalValue int              `json:"intervalValue"`
	IsMonitoring  bool             `json:"isMonitoring"`
	HasFailures   bool             `json:"hasFailures"`
	Alarm         string           `json:"alarm"`
}

// HasFailures reports whether any status in the table is down.
func HasFailures(statuses []EndpointStatus) bool {
	for _, s := range statuses {
		if !s.IsUp {
			return true
		}
	}
	return false
}

// StatusFor returns the status recorded for url, or nil.
func StatusFor(statuses []EndpointStatus, url string) *EndpointStatus {
	for i := range statuses {
		if statuses[i].URL == url {
			s := statuses[i]
			return &s
		}
	}
	return nil
}

// SameEndpoints compares two endpoint lists as ordered sets.
func SameEndpoints(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
