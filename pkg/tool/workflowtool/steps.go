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

package workflowtool

import (
	"context"
	"fmt"
	"reflect"

	"github.com/kadirpekel/conductor/pkg/model"
	"github.com/kadirpekel/conductor/pkg/retriever"
	"github.com/kadirpekel/conductor/pkg/tool/templatetool"
	"github.com/kadirpekel/conductor/pkg/workflow"
)

// StepType selects a built-in step.
type StepType string

const (
	// StepRetrieve queries a retriever and stores the items.
	StepRetrieve StepType = "retrieve"

	// StepRender renders a template from state into a key.
	StepRender StepType = "render"

	// StepGenerate sends a state key to an LLM and stores the completion.
	StepGenerate StepType = "generate"

	// StepRequire halts the workflow when a key is missing or empty.
	StepRequire StepType = "require"
)

// Default state keys.
const (
	DefaultQuery  = "{query}"
	DefaultItems  = "items"
	DefaultPrompt = "prompt"
	DefaultOutput = "output"
)

// StepConfig declares one built-in step. Which fields apply depends on Type.
type StepConfig struct {
	Name string   `yaml:"name"`
	Type StepType `yaml:"type"`

	// retrieve
	Retriever string         `yaml:"retriever,omitempty"`
	Query     string         `yaml:"query,omitempty"`
	TopK      int            `yaml:"top_k,omitempty"`
	Filters   map[string]any `yaml:"filters,omitempty"`

	// render and generate
	Template string `yaml:"template,omitempty"`
	Engine   string `yaml:"engine,omitempty"`
	LLM      string `yaml:"llm,omitempty"`
	System   string `yaml:"system,omitempty"`
	InputKey string `yaml:"input_key,omitempty"`

	// require
	Key string `yaml:"key,omitempty"`

	// OutputKey receives the step's result.
	OutputKey string `yaml:"output_key,omitempty"`
}

// SetDefaults applies per-type defaults.
func (c *StepConfig) SetDefaults() {
	switch c.Type {
	case StepRetrieve:
		if c.Query == "" {
			c.Query = DefaultQuery
		}
		if c.TopK == 0 {
			c.TopK = 5
		}
		if c.OutputKey == "" {
			c.OutputKey = DefaultItems
		}
	case StepRender:
		if c.OutputKey == "" {
			c.OutputKey = DefaultPrompt
		}
	case StepGenerate:
		if c.InputKey == "" {
			c.InputKey = DefaultPrompt
		}
		if c.OutputKey == "" {
			c.OutputKey = DefaultOutput
		}
	}
	if c.Name == "" {
		c.Name = string(c.Type)
	}
}

// Validate checks the step configuration.
func (c *StepConfig) Validate() error {
	switch c.Type {
	case StepRetrieve:
		if c.Retriever == "" {
			return fmt.Errorf("step %s: retriever is required", c.Name)
		}
		if c.TopK < 1 {
			return fmt.Errorf("step %s: top_k must be positive", c.Name)
		}
	case StepRender:
		if c.Template == "" {
			return fmt.Errorf("step %s: template is required", c.Name)
		}
	case StepGenerate:
	case StepRequire:
		if c.Key == "" {
			return fmt.Errorf("step %s: key is required", c.Name)
		}
	default:
		return fmt.Errorf("step %s: unknown type %q (valid: retrieve, render, generate, require)", c.Name, c.Type)
	}
	return nil
}

// Deps are the collaborators built-in steps need.
type Deps struct {
	Retrievers *retriever.Registry

	// LLM resolves an LLM caller by name. An empty name selects the default.
	LLM func(name string) (model.LLM, error)
}

// BuildSteps builds the declared steps in order.
func BuildSteps(configs []StepConfig, deps Deps) ([]workflow.Step, error) {
	steps := make([]workflow.Step, 0, len(configs))
	for i := range configs {
		cfg := configs[i]
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		step, err := buildStep(cfg, deps)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func buildStep(cfg StepConfig, deps Deps) (workflow.Step, error) {
	switch cfg.Type {
	case StepRetrieve:
		if deps.Retrievers == nil {
			return nil, fmt.Errorf("step %s: retriever registry is required", cfg.Name)
		}
		if _, err := deps.Retrievers.Resolve(cfg.Retriever); err != nil {
			return nil, fmt.Errorf("step %s: %w", cfg.Name, err)
		}
		query, err := templatetool.Parse(templatetool.EnginePlaceholder, cfg.Query)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", cfg.Name, err)
		}
		return Retrieve(cfg.Name, deps.Retrievers, cfg.Retriever, query, cfg.TopK, cfg.Filters, cfg.OutputKey), nil

	case StepRender:
		engine, err := templatetool.ParseEngine(cfg.Engine)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", cfg.Name, err)
		}
		tmpl, err := templatetool.Parse(engine, cfg.Template)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", cfg.Name, err)
		}
		return Render(cfg.Name, tmpl, cfg.OutputKey), nil

	case StepGenerate:
		if deps.LLM == nil {
			return nil, fmt.Errorf("step %s: no llm resolver", cfg.Name)
		}
		llm, err := deps.LLM(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", cfg.Name, err)
		}
		return Generate(cfg.Name, llm, cfg.System, cfg.InputKey, cfg.OutputKey), nil

	case StepRequire:
		return Require(cfg.Name, cfg.Key), nil
	}
	return nil, fmt.Errorf("step %s: unknown type %q", cfg.Name, cfg.Type)
}

// Retrieve returns a step that renders query from state, runs it against the
// named retriever and stores the items under key.
func Retrieve(name string, retrievers *retriever.Registry, retrieverName string, query *templatetool.Template, topK int, filters retriever.Filters, key string) workflow.Step {
	return workflow.NewStep(name, func(ctx context.Context, state workflow.State) (workflow.State, workflow.Signal, error) {
		text, err := query.Render(state.Map())
		if err != nil {
			return state, workflow.Continue, err
		}
		items, err := retrievers.Retrieve(ctx, retrieverName, retriever.Query{Text: text}, topK, filters)
		if err != nil {
			return state, workflow.Continue, err
		}
		return state.With(key, items), workflow.Continue, nil
	})
}

// Render returns a step that renders tmpl from state into key.
func Render(name string, tmpl *templatetool.Template, key string) workflow.Step {
	return workflow.NewStep(name, func(_ context.Context, state workflow.State) (workflow.State, workflow.Signal, error) {
		out, err := tmpl.Render(state.Map())
		if err != nil {
			return state, workflow.Continue, err
		}
		return state.With(key, out), workflow.Continue, nil
	})
}

// Generate returns a step that sends the string under input to llm and
// stores the completion under output.
func Generate(name string, llm model.LLM, system, input, output string) workflow.Step {
	return workflow.NewStep(name, func(ctx context.Context, state workflow.State) (workflow.State, workflow.Signal, error) {
		prompt := state.String(input)
		if prompt == "" {
			return state, workflow.Continue, fmt.Errorf("state key %q is empty", input)
		}
		resp, err := llm.Generate(ctx, &model.Request{Prompt: prompt, System: system})
		if err != nil {
			return state, workflow.Continue, fmt.Errorf("llm %s: %w", llm.Name(), err)
		}
		return state.With(output, resp.Text), workflow.Continue, nil
	})
}

// Require returns a step that halts when key is missing, nil, or an empty
// string, slice or map.
func Require(name, key string) workflow.Step {
	return workflow.NewStep(name, func(_ context.Context, state workflow.State) (workflow.State, workflow.Signal, error) {
		v, ok := state.Get(key)
		if !ok || isEmpty(v) {
			return state, workflow.Halt, nil
		}
		return state, workflow.Continue, nil
	})
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
