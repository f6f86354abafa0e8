package probe

import "context"

// CheckResult holds the outcome of a single HTTP request.
//
// StatusCode is 0 when the request never produced a response.
type CheckResult struct {
	Success    bool
	StatusCode int
	LatencyMS  float64
	Message    string
}

// Checker performs a single check for a given target URL.
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}
