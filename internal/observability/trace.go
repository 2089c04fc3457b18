package observability

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/snapbooth/booth-cli/internal/api"
)

// sensitiveParams are query parameter names scrubbed from trace output.
var sensitiveParams = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"token":         true,
	"code":          true,
	"state":         true,
	"code_verifier": true,
	"api_key":       true,
	"password":      true,
	"secret":        true,
	"client_secret": true,
}

// TraceWriter outputs human-readable trace lines with timestamps relative
// to session start.
type TraceWriter struct {
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
}

// NewTraceWriter creates a TraceWriter on stderr.
func NewTraceWriter() *TraceWriter {
	return NewTraceWriterTo(os.Stderr)
}

// NewTraceWriterTo creates a TraceWriter on w.
func NewTraceWriterTo(w io.Writer) *TraceWriter {
	return &TraceWriter{writer: w, startTime: time.Now()}
}

func (t *TraceWriter) elapsed() float64 {
	return time.Since(t.startTime).Seconds()
}

// WriteRequestStart writes a request start line.
// Format: [0.234s] -> GET /api/v1/booths (a1b2c3d4)
func (t *TraceWriter) WriteRequestStart(info api.RequestInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	retry := ""
	if info.Attempt > 1 {
		retry = fmt.Sprintf(" [retry %d]", info.Attempt-1)
	}
	fmt.Fprintf(t.writer, "[%.3fs] -> %s %s (%s)%s\n", t.elapsed(), info.Method, scrubURL(info.URL), shortID(info.ID), retry)
}

// WriteRequestEnd writes a request completion line.
// Format: [0.234s] <- 200 (45ms)
func (t *TraceWriter) WriteRequestEnd(_ api.RequestInfo, result api.RequestResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if result.Err != nil {
		fmt.Fprintf(t.writer, "[%.3fs] <- ERROR: %v\n", t.elapsed(), result.Err)
		return
	}
	fmt.Fprintf(t.writer, "[%.3fs] <- %d (%dms)\n", t.elapsed(), result.StatusCode, result.Duration.Milliseconds())
}

// WriteRefresh writes a token refresh line.
func (t *TraceWriter) WriteRefresh(success bool, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	fmt.Fprintf(t.writer, "[%.3fs] token refresh %s (%dms)\n", t.elapsed(), outcome, duration.Milliseconds())
}

// Reset resets the start time for relative timestamps.
func (t *TraceWriter) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startTime = time.Now()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// scrubURL redacts sensitive query parameters from a URL.
func scrubURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable URL]"
	}

	query := u.Query()
	modified := false
	for key := range query {
		if sensitiveParams[strings.ToLower(key)] {
			query.Set(key, "[REDACTED]")
			modified = true
		}
	}
	if !modified {
		return rawURL
	}

	u.RawQuery = query.Encode()
	return u.String()
}
