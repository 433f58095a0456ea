// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry provides execution records, observability hooks,
// OpenTelemetry metrics and tracing for tool and retriever execution.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/kadirpekel/conductor/pkg/errs"
)

// ExecutionRecord describes one tool execution. It is created per call,
// handed to the observability hook and then discarded.
type ExecutionRecord struct {
	ID              string         `json:"id"`
	ToolName        string         `json:"tool_name"`
	VersionResolved string         `json:"version_resolved"`
	Subtool         string         `json:"subtool,omitempty"`
	Arguments       map[string]any `json:"arguments,omitempty"`
	Success         bool           `json:"success"`
	LatencyMS       int64          `json:"latency_ms"`
	ErrorKind       *errs.Kind     `json:"error_kind"`
	ResultCount     int            `json:"result_count"`
	StartedAt       time.Time      `json:"started_at"`

	// Err is the classified error returned to the caller, nil on success.
	Err error `json:"-"`
}

// Latency returns the recorded latency as a duration.
func (r ExecutionRecord) Latency() time.Duration {
	return time.Duration(r.LatencyMS) * time.Millisecond
}

// Hook observes completed executions.
type Hook interface {
	OnExecution(ctx context.Context, rec ExecutionRecord)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, rec ExecutionRecord)

func (f HookFunc) OnExecution(ctx context.Context, rec ExecutionRecord) {
	f(ctx, rec)
}

// Fanout returns a Hook that calls each non-nil hook in order.
func Fanout(hooks ...Hook) Hook {
	filtered := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h == nil {
			continue
		}
		if f, ok := h.(fanout); ok {
			filtered = append(filtered, f...)
			continue
		}
		filtered = append(filtered, h)
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return fanout(filtered)
}

type fanout []Hook

func (f fanout) OnExecution(ctx context.Context, rec ExecutionRecord) {
	for _, h := range f {
		h.OnExecution(ctx, rec)
	}
}

// NopHook discards records.
var NopHook Hook = HookFunc(func(context.Context, ExecutionRecord) {})

// LogHook writes one line per execution: Info on success, Warn on failure.
func LogHook(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return HookFunc(func(ctx context.Context, rec ExecutionRecord) {
		attrs := []any{
			"id", rec.ID,
			"tool", rec.ToolName,
			"version", rec.VersionResolved,
			"latency_ms", rec.LatencyMS,
		}
		if rec.Subtool != "" {
			attrs = append(attrs, "subtool", rec.Subtool)
		}
		if rec.Success {
			attrs = append(attrs, "results", rec.ResultCount)
			logger.InfoContext(ctx, "Tool executed", attrs...)
			return
		}
		if rec.ErrorKind != nil {
			attrs = append(attrs, "kind", string(*rec.ErrorKind))
		}
		attrs = append(attrs, "error", rec.Err)
		logger.WarnContext(ctx, "Tool execution failed", attrs...)
	})
}

// MetricsHook feeds execution records into m.
func MetricsHook(m Metrics) Hook {
	if m == nil {
		return NopHook
	}
	return HookFunc(func(ctx context.Context, rec ExecutionRecord) {
		m.RecordToolExecution(ctx, rec)
	})
}
