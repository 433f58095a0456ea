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
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Manager owns the tracer provider and metrics for one process.
type Manager struct {
	config Config

	mu             sync.RWMutex
	tracerProvider trace.TracerProvider
	metrics        *PrometheusMetrics
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		config:         cfg,
		tracerProvider: noop.NewTracerProvider(),
		metrics:        &PrometheusMetrics{},
	}
}

// NoopManager returns a Manager with tracing and metrics disabled.
func NoopManager() *Manager {
	return NewManager(Config{})
}

func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := InitTracer(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	metrics, err := InitMetrics(m.config.Metrics)
	if err != nil {
		return err
	}
	m.metrics = metrics

	slog.Debug("Telemetry initialized",
		"tracing", m.config.Tracing.Enabled,
		"exporter", m.config.Tracing.Exporter,
		"metrics", m.config.Metrics.Enabled)
	return nil
}

func (m *Manager) Tracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracerProvider.Tracer(name)
}

// Metrics returns the metrics recorder. It is never nil.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metrics == nil {
		return NoopMetrics{}
	}
	return m.metrics
}

// Hook returns the observability hook built from the configuration: the
// metrics hook plus, unless disabled, the log hook.
func (m *Manager) Hook(logger *slog.Logger) Hook {
	hooks := []Hook{MetricsHook(m.Metrics())}
	if m.config.ShouldLogExecutions() {
		hooks = append(hooks, LogHook(logger))
	}
	return Fanout(hooks...)
}

// MetricsHandler serves Prometheus metrics, or 404 when metrics are off.
func (m *Manager) MetricsHandler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics.Handler()
}

func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errList []error
	if spt, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		errList = append(errList, spt.Shutdown(ctx))
	}
	errList = append(errList, m.metrics.Shutdown(ctx))
	return errors.Join(errList...)
}
