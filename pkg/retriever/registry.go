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

package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/conductor/pkg/errs"
	"github.com/kadirpekel/conductor/pkg/registry"
	"github.com/kadirpekel/conductor/pkg/telemetry"
)

// Registry holds named strategies. It never retries and has no
// observability hook; it records metrics and spans only.
type Registry struct {
	strategies *registry.Registry[Strategy]
	metrics    telemetry.Metrics
	tracer     trace.Tracer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMetrics records retrieval metrics.
func WithMetrics(m telemetry.Metrics) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTracer overrides the tracer used for retrieval spans.
func WithTracer(t trace.Tracer) RegistryOption {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// NewRegistry creates an empty retriever registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		strategies: registry.New[Strategy]("retriever"),
		metrics:    telemetry.NoopMetrics{},
		tracer:     telemetry.Tracer(telemetry.InstrumentationRetrievers),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds strategy under name. A duplicate name returns
// *errs.DuplicateRegistrationError.
func (r *Registry) Register(name string, strategy Strategy) error {
	if strategy == nil {
		return fmt.Errorf("retriever %q: strategy cannot be nil", name)
	}
	if err := r.strategies.Register(name, strategy); err != nil {
		return err
	}
	slog.Debug("Registered retriever", "retriever", name, "kind", strategy.Metadata().Kind)
	return nil
}

// Resolve returns the strategy registered under name.
func (r *Registry) Resolve(name string) (Strategy, error) {
	s, ok := r.strategies.Get(name)
	if !ok {
		return nil, &errs.RetrieverNotFoundError{Name: name}
	}
	return s, nil
}

// List returns metadata for every registered retriever, ordered by name.
func (r *Registry) List() []Metadata {
	strategies := r.strategies.List()
	out := make([]Metadata, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, s.Metadata())
	}
	return out
}

// Names returns registered names in ascending order.
func (r *Registry) Names() []string {
	return r.strategies.Names()
}

// Retrieve runs query against the named strategy. Results are ordered by
// descending score and truncated to topK. Requests that cannot be turned
// into a backend query return *errs.InvalidQueryError; backend failures are
// returned as *errs.BackendUnavailableError.
func (r *Registry) Retrieve(ctx context.Context, name string, query Query, topK int, filters Filters) ([]Item, error) {
	s, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, &errs.InvalidQueryError{Retriever: name, Err: fmt.Errorf("top_k must be positive, got %d", topK)}
	}

	kind := string(s.Metadata().Kind)
	ctx, span := r.tracer.Start(ctx, telemetry.SpanRetrieverRetrieve,
		trace.WithAttributes(
			attribute.String(telemetry.AttrRetrieverName, name),
			attribute.String(telemetry.AttrRetrieverKind, kind),
			attribute.Int(telemetry.AttrRetrieverTopK, topK),
		))
	defer span.End()

	start := time.Now()
	items, err := s.Retrieve(ctx, query, topK, filters)
	if err != nil {
		err = wrapBackendError(name, query, err)
		r.metrics.RecordRetrieval(ctx, name, kind, time.Since(start), 0, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	items = rank(items, topK)
	r.metrics.RecordRetrieval(ctx, name, kind, time.Since(start), len(items), nil)
	span.SetAttributes(attribute.Int(telemetry.AttrResultCount, len(items)))
	span.SetStatus(codes.Ok, "")
	return items, nil
}

// wrapBackendError keeps errors that already carry a taxonomy kind and
// wraps everything else as a backend failure.
func wrapBackendError(name string, query Query, err error) error {
	var kinded errs.Kinded
	if errors.As(err, &kinded) {
		return err
	}
	return &errs.BackendUnavailableError{Retriever: name, Query: query.Text, Err: err}
}

// Close releases every strategy's backend handle.
func (r *Registry) Close() error {
	var errList []error
	for _, name := range r.strategies.Names() {
		s, _ := r.strategies.Get(name)
		c, ok := s.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errList = append(errList, fmt.Errorf("retriever %q: %w", name, err))
		}
	}
	return errors.Join(errList...)
}
