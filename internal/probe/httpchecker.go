package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds every probe request.
const DefaultTimeout = 10 * time.Second

type HTTPChecker struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPChecker{
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

// Check issues one GET. Only 2xx counts as success.
func (h *HTTPChecker) Check(ctx context.Context, target string) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return CheckResult{Success: false, Message: err.Error()}
	}

	resp, err := h.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("request timed out after %s", h.Timeout)
		}
		return CheckResult{Success: false, Message: msg, LatencyMS: latency}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	msg := resp.Status
	if !success {
		msg = "unexpected status " + resp.Status
	}
	return CheckResult{
		Success:    success,
		StatusCode: resp.StatusCode,
		Message:    msg,
		LatencyMS:  latency,
	}
}
