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

// Package workflowtool provides tools that run a short step sequence.
//
// The call arguments become the initial workflow state. After the last step
// (or a halt) the final state is mapped into output items:
//
//   - with Output.ItemsKey set, the list stored under that key becomes the
//     items (retrieved items keep their id, score and provenance);
//   - otherwise one item is returned whose content is Output.Keys of the
//     final state, or the whole state when no keys are given.
//
// Steps come from configuration (retrieve, render, generate, require) or
// are passed programmatically through NewFromRunner.
package workflowtool

import (
	"context"
	"fmt"

	"github.com/kadirpekel/conductor/pkg/retriever"
	"github.com/kadirpekel/conductor/pkg/tool"
	"github.com/kadirpekel/conductor/pkg/tool/retrievaltool"
	"github.com/kadirpekel/conductor/pkg/workflow"
)

// OutputConfig maps the final state into output items.
type OutputConfig struct {
	ItemsKey string   `yaml:"items_key,omitempty"`
	Keys     []string `yaml:"keys,omitempty"`

	// Fields trims retrieved item payloads. When empty they are taken from
	// the tool's output schema.
	Fields []string `yaml:"fields,omitempty"`
}

// Config declares a workflow tool.
type Config struct {
	Steps  []StepConfig `yaml:"steps"`
	Output OutputConfig `yaml:"output,omitempty"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	return nil
}

// Tool runs a workflow.
type Tool struct {
	tool.Base
	runner *workflow.Runner
	output OutputConfig
	fields []string
}

// New builds a workflow tool from declared steps.
func New(meta tool.Metadata, cfg Config, deps Deps) (*Tool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tool %s: %w", meta.Name, err)
	}
	steps, err := BuildSteps(cfg.Steps, deps)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", meta.Name, err)
	}
	runner, err := workflow.NewRunner(meta.Name, steps...)
	if err != nil {
		return nil, err
	}

	if meta.EffectBoundary == "" {
		meta.EffectBoundary = effectOf(cfg.Steps)
	}
	return NewFromRunner(meta, runner, cfg.Output)
}

// NewFromRunner wraps an existing runner.
func NewFromRunner(meta tool.Metadata, runner *workflow.Runner, output OutputConfig) (*Tool, error) {
	if runner == nil {
		return nil, fmt.Errorf("tool %s: runner is required", meta.Name)
	}
	if meta.BackendKind == "" {
		meta.BackendKind = tool.BackendWorkflow
	}

	fields := output.Fields
	if len(fields) == 0 {
		fields = retrievaltool.OutputFields(meta.OutputSchema)
	}
	return &Tool{
		Base:   tool.Base{Meta: meta},
		runner: runner,
		output: output,
		fields: fields,
	}, nil
}

// effectOf returns the strongest effect among the declared steps.
func effectOf(steps []StepConfig) tool.EffectBoundary {
	effect := tool.EffectPure
	for _, s := range steps {
		switch s.Type {
		case StepGenerate:
			return tool.EffectLLM
		case StepRetrieve:
			effect = tool.EffectRetrieval
		}
	}
	return effect
}

// Steps returns the step names in order.
func (t *Tool) Steps() []string { return t.runner.Steps() }

// Execute runs the workflow with args as the initial state. A failing step
// returns a *workflow.StepError carrying the partial state.
func (t *Tool) Execute(ctx context.Context, args map[string]any) ([]tool.Item, error) {
	result, err := t.runner.Run(ctx, workflow.NewState(args))
	if err != nil {
		return nil, err
	}
	return t.mapOutput(result.State)
}

func (t *Tool) mapOutput(state workflow.State) ([]tool.Item, error) {
	if t.output.ItemsKey != "" {
		v, ok := state.Get(t.output.ItemsKey)
		if !ok || v == nil {
			return []tool.Item{}, nil
		}
		return t.toItems(v)
	}

	content := make(map[string]any)
	if len(t.output.Keys) == 0 {
		content = state.Map()
	} else {
		for _, k := range t.output.Keys {
			if v, ok := state.Get(k); ok {
				content[k] = v
			}
		}
	}
	return []tool.Item{{Content: content}}, nil
}

func (t *Tool) toItems(v any) ([]tool.Item, error) {
	switch list := v.(type) {
	case []retriever.Item:
		out := make([]tool.Item, len(list))
		for i, it := range list {
			out[i] = retrievaltool.MapItem(it, t.fields)
		}
		return out, nil
	case []tool.Item:
		return list, nil
	case []map[string]any:
		out := make([]tool.Item, len(list))
		for i, m := range list {
			out[i] = tool.Item{Content: m}
		}
		return out, nil
	case []any:
		out := make([]tool.Item, len(list))
		for i, e := range list {
			m, ok := e.(map[string]any)
			if !ok {
				m = map[string]any{"value": e}
			}
			out[i] = tool.Item{Content: m}
		}
		return out, nil
	}
	return nil, fmt.Errorf("state key %q holds %T, not a list", t.output.ItemsKey, v)
}
