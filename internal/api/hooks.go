package api

import (
	"context"
	"time"
)

// RequestInfo describes one HTTP attempt.
type RequestInfo struct {
	ID      string
	Method  string
	URL     string
	Attempt int
}

// RequestResult is the outcome of one HTTP attempt. StatusCode is 0 when the
// server was not reached.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Hooks observe the request lifecycle.
type Hooks interface {
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)
	OnRefresh(success bool, duration time.Duration)
}

// NoopHooks ignores every event.
type NoopHooks struct{}

func (NoopHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context { return ctx }
func (NoopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult) {}
func (NoopHooks) OnRefresh(bool, time.Duration) {}
