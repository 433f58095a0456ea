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

package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kadirpekel/conductor/pkg/errs"
)

// Metrics records tool and retriever measurements.
type Metrics interface {
	RecordToolExecution(ctx context.Context, rec ExecutionRecord)
	RecordRetrieval(ctx context.Context, retriever, kind string, duration time.Duration, results int, err error)
	RecordCompositeMemberFailure(ctx context.Context, composite, member string)
}

// NoopMetrics discards all measurements.
type NoopMetrics struct{}

func (NoopMetrics) RecordToolExecution(context.Context, ExecutionRecord) {}

func (NoopMetrics) RecordRetrieval(context.Context, string, string, time.Duration, int, error) {}

func (NoopMetrics) RecordCompositeMemberFailure(context.Context, string, string) {}

// PrometheusMetrics records measurements through OpenTelemetry instruments
// exported in Prometheus format.
type PrometheusMetrics struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	toolDuration    metric.Float64Histogram
	toolCallsTotal  metric.Int64Counter
	toolErrorsTotal metric.Int64Counter

	retrievalDuration    metric.Float64Histogram
	retrievalCallsTotal  metric.Int64Counter
	retrievalErrorsTotal metric.Int64Counter
	retrievalResults     metric.Int64Histogram

	memberFailuresTotal metric.Int64Counter
}

// InitMetrics builds the meter provider and instruments. Each call uses its
// own Prometheus registry so several runtimes can coexist in one process.
func InitMetrics(cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(DefaultNamespace)
	ns := cfg.Namespace

	m := &PrometheusMetrics{provider: provider, registry: registry}

	if m.toolDuration, err = meter.Float64Histogram(
		ns+"_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	if m.toolCallsTotal, err = meter.Int64Counter(
		ns+"_tool_calls_total",
		metric.WithDescription("Total tool executions"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	if m.toolErrorsTotal, err = meter.Int64Counter(
		ns+"_tool_errors_total",
		metric.WithDescription("Total failed tool executions by error kind"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	if m.retrievalDuration, err = meter.Float64Histogram(
		ns+"_retrieval_duration_seconds",
		metric.WithDescription("Retrieval duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieval duration histogram: %w", err)
	}

	if m.retrievalCallsTotal, err = meter.Int64Counter(
		ns+"_retrieval_calls_total",
		metric.WithDescription("Total retrieval calls"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieval calls counter: %w", err)
	}

	if m.retrievalErrorsTotal, err = meter.Int64Counter(
		ns+"_retrieval_errors_total",
		metric.WithDescription("Total failed retrieval calls"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieval errors counter: %w", err)
	}

	if m.retrievalResults, err = meter.Int64Histogram(
		ns+"_retrieval_results",
		metric.WithDescription("Number of items returned per retrieval"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieval results histogram: %w", err)
	}

	if m.memberFailuresTotal, err = meter.Int64Counter(
		ns+"_composite_member_failures_total",
		metric.WithDescription("Composite retriever members excluded after a failure"),
	); err != nil {
		return nil, fmt.Errorf("failed to create member failures counter: %w", err)
	}

	return m, nil
}

func (m *PrometheusMetrics) RecordToolExecution(ctx context.Context, rec ExecutionRecord) {
	if m == nil || m.toolDuration == nil || m.toolCallsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("tool", rec.ToolName),
		attribute.String("version", rec.VersionResolved),
	)

	m.toolDuration.Record(ctx, rec.Latency().Seconds(), attrs)
	m.toolCallsTotal.Add(ctx, 1, attrs)

	if !rec.Success && m.toolErrorsTotal != nil {
		kind := errs.KindExecutionFailed
		if rec.ErrorKind != nil {
			kind = *rec.ErrorKind
		}
		m.toolErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", rec.ToolName),
			attribute.String("version", rec.VersionResolved),
			attribute.String("kind", string(kind)),
		))
	}
}

func (m *PrometheusMetrics) RecordRetrieval(ctx context.Context, retriever, kind string, duration time.Duration, results int, err error) {
	if m == nil || m.retrievalDuration == nil || m.retrievalCallsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("retriever", retriever),
		attribute.String("kind", kind),
	)

	m.retrievalDuration.Record(ctx, duration.Seconds(), attrs)
	m.retrievalCallsTotal.Add(ctx, 1, attrs)

	if err != nil {
		if m.retrievalErrorsTotal != nil {
			m.retrievalErrorsTotal.Add(ctx, 1, attrs)
		}
		return
	}
	if m.retrievalResults != nil {
		m.retrievalResults.Record(ctx, int64(results), attrs)
	}
}

func (m *PrometheusMetrics) RecordCompositeMemberFailure(ctx context.Context, composite, member string) {
	if m == nil || m.memberFailuresTotal == nil {
		return
	}
	m.memberFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("composite", composite),
		attribute.String("member", member),
	))
}

// Handler serves the collected metrics in Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (m *PrometheusMetrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

var (
	_ Metrics = NoopMetrics{}
	_ Metrics = (*PrometheusMetrics)(nil)
)
