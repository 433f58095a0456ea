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

// Package builder assembles a runnable Runtime from configuration.
//
// Retrievers and tools are created through factory tables keyed by kind:
//
//	RetrieverFactories[retriever.KindVector] → *retriever.VectorStrategy
//	RetrieverFactories[retriever.KindHybrid] → *retriever.Composite
//	ToolFactories[tool.BackendTemplated]     → *templatetool.Tool
//
// Embedding programs inject real model callers and programmatic tools:
//
//	rt, err := builder.Build(ctx, cfg,
//	    builder.WithEmbedder("default", myEmbedder),
//	    builder.WithLLM("default", myLLM),
//	    builder.WithTools(lookupTool),
//	)
//	defer rt.Close()
//	items, err := rt.Tools.Execute(ctx, "journal_search", args)
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/model"
	"github.com/kadirpekel/conductor/pkg/retriever"
	"github.com/kadirpekel/conductor/pkg/telemetry"
	"github.com/kadirpekel/conductor/pkg/tool"
)

// Option configures Build.
type Option func(*options)

type options struct {
	embedders map[string]model.Embedder
	llms      map[string]model.LLM
	tools     []tool.Tool
	telemetry *telemetry.Manager
	logger    *slog.Logger
	hooks     []telemetry.Hook
}

// WithEmbedder registers an embedder under name, replacing any configured
// embedder of the same name.
func WithEmbedder(name string, e model.Embedder) Option {
	return func(o *options) {
		o.embedders[name] = e
	}
}

// WithLLM registers an LLM caller under name, replacing any configured LLM
// of the same name.
func WithLLM(name string, l model.LLM) Option {
	return func(o *options) {
		o.llms[name] = l
	}
}

// WithTools registers programmatic tools after the configured ones.
func WithTools(tools ...tool.Tool) Option {
	return func(o *options) {
		o.tools = append(o.tools, tools...)
	}
}

// WithTelemetry wires metrics, tracing and the execution log hook from m.
func WithTelemetry(m *telemetry.Manager, logger *slog.Logger) Option {
	return func(o *options) {
		o.telemetry = m
		o.logger = logger
	}
}

// WithHook adds an execution hook. Hooks run in the order given, after
// the telemetry hook.
func WithHook(h telemetry.Hook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, h)
	}
}

// Runtime is one assembled generation of registries. Close it when it is
// replaced or the process exits.
type Runtime struct {
	Config     *config.Config
	Retrievers *retriever.Registry
	Tools      *tool.Registry

	embedders map[string]model.Embedder
	llms      map[string]model.LLM
}

// Embedder returns the embedder registered under name.
func (rt *Runtime) Embedder(name string) (model.Embedder, error) {
	return lookup(rt.embedders, "embedder", name)
}

// LLM returns the LLM caller registered under name. An empty name selects
// the default.
func (rt *Runtime) LLM(name string) (model.LLM, error) {
	return lookup(rt.llms, "llm", name)
}

// Close releases every retriever backend.
func (rt *Runtime) Close() error {
	return rt.Retrievers.Close()
}

func lookup[T any](m map[string]T, what, name string) (T, error) {
	if name == "" {
		name = config.DefaultName
	}
	v, ok := m[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q is not configured (available: %v)", what, name, slices.Sorted(maps.Keys(m)))
	}
	return v, nil
}

// Build creates every configured collaborator, retriever and tool. On
// failure everything created so far is closed.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	o := options{
		embedders: map[string]model.Embedder{},
		llms:      map[string]model.LLM{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{
		Config:    cfg,
		embedders: map[string]model.Embedder{},
		llms:      map[string]model.LLM{},
	}
	for name, ec := range cfg.Embedders {
		e, err := model.NewEmbedder(*ec)
		if err != nil {
			return nil, fmt.Errorf("embedder %q: %w", name, err)
		}
		rt.embedders[name] = e
	}
	for name, lc := range cfg.LLMs {
		l, err := model.NewLLM(name, *lc)
		if err != nil {
			return nil, fmt.Errorf("llm %q: %w", name, err)
		}
		rt.llms[name] = l
	}
	maps.Copy(rt.embedders, o.embedders)
	maps.Copy(rt.llms, o.llms)

	var (
		retrieverOpts []retriever.RegistryOption
		toolOpts      = []tool.RegistryOption{tool.WithDefaultTimeout(cfg.Execution.DefaultTimeout)}
		hooks         []telemetry.Hook
	)
	if o.telemetry != nil {
		logger := o.logger
		if logger == nil {
			logger = slog.Default()
		}
		retrieverOpts = append(retrieverOpts,
			retriever.WithMetrics(o.telemetry.Metrics()),
			retriever.WithTracer(o.telemetry.Tracer(telemetry.InstrumentationRetrievers)))
		toolOpts = append(toolOpts, tool.WithTracer(o.telemetry.Tracer(telemetry.InstrumentationTools)))
		hooks = append(hooks, o.telemetry.Hook(logger))
	}
	hooks = append(hooks, o.hooks...)
	if len(hooks) > 0 {
		toolOpts = append(toolOpts, tool.WithHook(telemetry.Fanout(hooks...)))
	}

	rt.Retrievers = retriever.NewRegistry(retrieverOpts...)
	rt.Tools = tool.NewRegistry(toolOpts...)

	deps := &Deps{
		Retrievers: rt.Retrievers,
		Embedder:   rt.Embedder,
		LLM:        rt.LLM,
		LLMConfig: func(name string) *model.LLMConfig {
			if name == "" {
				name = config.DefaultName
			}
			return cfg.LLMs[name]
		},
	}
	if o.telemetry != nil {
		deps.Metrics = o.telemetry.Metrics()
	}

	if err := buildRetrievers(ctx, cfg.Retrievers, deps); err != nil {
		return nil, errors.Join(err, rt.Close())
	}
	if err := buildTools(ctx, cfg.Tools, deps, rt.Tools); err != nil {
		return nil, errors.Join(err, rt.Close())
	}
	for _, t := range o.tools {
		if err := rt.Tools.Register(t); err != nil {
			return nil, errors.Join(err, rt.Close())
		}
	}

	slog.Info("Runtime built",
		"retrievers", len(rt.Retrievers.Names()),
		"tools", len(rt.Tools.Names()))
	return rt, nil
}

// Deps are the collaborators factories draw from.
type Deps struct {
	Retrievers *retriever.Registry
	Embedder   func(name string) (model.Embedder, error)
	LLM        func(name string) (model.LLM, error)
	LLMConfig  func(name string) *model.LLMConfig

	// Metrics is nil when telemetry is not wired.
	Metrics telemetry.Metrics
}
