package observability

import (
	"context"
	"sync"
	"time"

	"github.com/snapbooth/booth-cli/internal/api"
	"github.com/snapbooth/booth-cli/internal/auth"
)

var (
	_ api.Hooks            = (*CLIHooks)(nil)
	_ auth.RefreshObserver = (*CLIHooks)(nil)
)

// CLIHooks feeds request and refresh events to a collector and, at level 1
// and above, a trace writer.
type CLIHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	writer    *TraceWriter
}

// NewCLIHooks creates hooks. A nil collector or writer disables that sink.
func NewCLIHooks(level int, collector *SessionCollector, writer *TraceWriter) *CLIHooks {
	return &CLIHooks{level: level, collector: collector, writer: writer}
}

// SetLevel changes the verbosity level at runtime.
func (h *CLIHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current verbosity level.
func (h *CLIHooks) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

func (h *CLIHooks) sinks() (int, *SessionCollector, *TraceWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.collector, h.writer
}

func (h *CLIHooks) OnRequestStart(ctx context.Context, info api.RequestInfo) context.Context {
	level, _, writer := h.sinks()
	if level >= 1 && writer != nil {
		writer.WriteRequestStart(info)
	}
	return ctx
}

func (h *CLIHooks) OnRequestEnd(_ context.Context, info api.RequestInfo, result api.RequestResult) {
	level, collector, writer := h.sinks()
	if collector != nil {
		collector.RecordRequest(info, result)
	}
	if level >= 1 && writer != nil {
		writer.WriteRequestEnd(info, result)
	}
}

func (h *CLIHooks) OnRefresh(success bool, duration time.Duration) {
	level, collector, writer := h.sinks()
	if collector != nil {
		collector.RecordRefresh(success)
	}
	if level >= 1 && writer != nil {
		writer.WriteRefresh(success, duration)
	}
}
