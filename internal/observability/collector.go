// Package observability provides request metrics and tracing for the CLI.
package observability

import (
	"sync"
	"time"

	"github.com/snapbooth/booth-cli/internal/api"
)

// SessionMetrics aggregates metrics for one CLI invocation.
type SessionMetrics struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalRequests   int
	FailedRequests  int
	TotalRetries    int
	Refreshes       int
	FailedRefreshes int
	TotalLatency    time.Duration
}

// SessionCollector accumulates metrics across a CLI session.
// It is safe for concurrent use.
type SessionCollector struct {
	mu sync.Mutex

	startTime       time.Time
	totalRequests   int
	failedRequests  int
	totalRetries    int
	refreshes       int
	failedRefreshes int
	totalLatency    time.Duration
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{startTime: time.Now()}
}

// RecordRequest records one HTTP attempt. Attempts after the first count as
// retries; transport errors and non-2xx statuses count as failures.
func (c *SessionCollector) RecordRequest(info api.RequestInfo, result api.RequestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += result.Duration
	if info.Attempt > 1 {
		c.totalRetries++
	}
	if result.Err != nil || result.StatusCode < 200 || result.StatusCode > 299 {
		c.failedRequests++
	}
}

// RecordRefresh records one token refresh exchange.
func (c *SessionCollector) RecordRefresh(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	if !success {
		c.failedRefreshes++
	}
}

// Summary returns aggregated metrics for the session.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return SessionMetrics{
		StartTime:       c.startTime,
		EndTime:         time.Now(),
		TotalRequests:   c.totalRequests,
		FailedRequests:  c.failedRequests,
		TotalRetries:    c.totalRetries,
		Refreshes:       c.refreshes,
		FailedRefreshes: c.failedRefreshes,
		TotalLatency:    c.totalLatency,
	}
}

// Stats renders the summary for the output envelope's meta block.
func (m SessionMetrics) Stats() map[string]any {
	stats := map[string]any{
		"requests":   m.TotalRequests,
		"latency_ms": m.TotalLatency.Milliseconds(),
	}
	if m.FailedRequests > 0 {
		stats["failed"] = m.FailedRequests
	}
	if m.TotalRetries > 0 {
		stats["retries"] = m.TotalRetries
	}
	if m.Refreshes > 0 {
		stats["refreshes"] = m.Refreshes
	}
	return stats
}

// Reset clears all collected metrics and resets the start time.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.totalRequests = 0
	c.failedRequests = 0
	c.totalRetries = 0
	c.refreshes = 0
	c.failedRefreshes = 0
	c.totalLatency = 0
}
