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

// Package templatetool provides templated tools: a prompt is rendered from
// the call arguments, sent to an LLM caller, and the opaque completion is
// wrapped into one output item.
//
// Two template engines are available:
//
//	placeholder  "Summarize {text} in the voice of {persona?}."
//	go           "Summarize {{ .text | trunc 2000 }}."  (text/template + sprig)
//
// Every templated tool exposes a "render" subtool that returns the rendered
// prompt and its token count without calling the LLM.
package templatetool

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kadirpekel/conductor/pkg/errs"
	"github.com/kadirpekel/conductor/pkg/model"
	"github.com/kadirpekel/conductor/pkg/tool"
)

// SubtoolRender renders the prompt without calling the LLM.
const SubtoolRender = "render"

// DefaultOutputKey holds the completion text in the output item.
const DefaultOutputKey = "text"

// Config configures a templated tool.
type Config struct {
	// Template is the prompt template (required).
	Template string `yaml:"template"`

	// Engine is "placeholder" (default) or "go".
	Engine string `yaml:"engine,omitempty"`

	// System is an optional system instruction, rendered like Template.
	System string `yaml:"system,omitempty"`

	// LLM names the configured LLM caller. Resolved by the builder.
	LLM string `yaml:"llm,omitempty"`

	// MaxPromptTokens rejects rendered prompts above this many tokens.
	// Zero disables the budget.
	MaxPromptTokens int `yaml:"max_prompt_tokens,omitempty"`

	// Encoding is the tiktoken encoding used for the budget.
	Encoding string `yaml:"encoding,omitempty"`

	// MaxTokens and Temperature are passed to the LLM.
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`

	// OutputKey names the content field holding the completion.
	OutputKey string `yaml:"output_key,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Engine == "" {
		c.Engine = string(EnginePlaceholder)
	}
	if c.OutputKey == "" {
		c.OutputKey = DefaultOutputKey
	}
	if c.Encoding == "" {
		c.Encoding = model.DefaultEncoding
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Template == "" {
		return fmt.Errorf("template is required")
	}
	if _, err := ParseEngine(c.Engine); err != nil {
		return err
	}
	if c.MaxPromptTokens < 0 {
		return fmt.Errorf("max_prompt_tokens cannot be negative")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative")
	}
	return nil
}

// Option configures a Tool.
type Option func(*Tool)

// WithTokenCounter sets the counter used for the prompt budget. Without one
// a tiktoken counter for the configured encoding is created when a budget
// is set.
func WithTokenCounter(c model.TokenCounter) Option {
	return func(t *Tool) {
		t.counter = c
	}
}

// Tool renders a prompt and calls an LLM.
type Tool struct {
	tool.Base
	llm     model.LLM
	config  Config
	prompt  *Template
	system  *Template
	counter model.TokenCounter
}

// New creates a templated tool.
func New(meta tool.Metadata, llm model.LLM, cfg Config, opts ...Option) (*Tool, error) {
	if llm == nil {
		return nil, fmt.Errorf("tool %s: llm is required", meta.Name)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tool %s: %w", meta.Name, err)
	}

	engine, _ := ParseEngine(cfg.Engine)
	prompt, err := Parse(engine, cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", meta.Name, err)
	}
	var system *Template
	if cfg.System != "" {
		if system, err = Parse(engine, cfg.System); err != nil {
			return nil, fmt.Errorf("tool %s: system: %w", meta.Name, err)
		}
	}

	if meta.BackendKind == "" {
		meta.BackendKind = tool.BackendTemplated
	}
	if meta.EffectBoundary == "" {
		meta.EffectBoundary = tool.EffectLLM
	}
	if len(meta.InputSchema) == 0 {
		meta.InputSchema = inputSchema(prompt, system)
	}
	if !slices.Contains(meta.Subtools, SubtoolRender) {
		meta.Subtools = append(slices.Clone(meta.Subtools), SubtoolRender)
	}

	t := &Tool{
		Base:   tool.Base{Meta: meta},
		llm:    llm,
		config: cfg,
		prompt: prompt,
		system: system,
	}
	for _, opt := range opts {
		opt(t)
	}

	if cfg.MaxPromptTokens > 0 && t.counter == nil {
		counter, err := model.NewTokenCounter(cfg.Encoding)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", meta.Name, err)
		}
		t.counter = counter
	}
	return t, nil
}

// inputSchema declares one property per placeholder, requiring the
// non-optional ones. Go templates accept any object.
func inputSchema(templates ...*Template) map[string]any {
	vars := make(map[string]bool)
	for _, t := range templates {
		if t == nil {
			continue
		}
		for name, required := range t.Placeholders() {
			// Only top-level names become properties.
			root, _, _ := strings.Cut(name, ".")
			vars[root] = vars[root] || required
		}
	}

	props := make(map[string]any, len(vars))
	var required []any
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		props[name] = map[string]any{}
		if vars[name] {
			required = append(required, name)
		}
	}

	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// rendered is a prompt ready to send.
type rendered struct {
	prompt string
	system string
	tokens int
}

func (t *Tool) render(args map[string]any) (*rendered, error) {
	prompt, err := t.prompt.Render(args)
	if err != nil {
		return nil, t.shapeError(err)
	}
	out := &rendered{prompt: prompt}
	if t.system != nil {
		if out.system, err = t.system.Render(args); err != nil {
			return nil, t.shapeError(err)
		}
	}

	if t.counter != nil {
		out.tokens = t.counter.Count(out.system) + t.counter.Count(out.prompt)
		if t.config.MaxPromptTokens > 0 && out.tokens > t.config.MaxPromptTokens {
			return nil, t.shapeError(fmt.Errorf("prompt has %d tokens, budget is %d", out.tokens, t.config.MaxPromptTokens))
		}
	}
	return out, nil
}

// shapeError reports arguments that cannot produce a valid prompt.
func (t *Tool) shapeError(err error) error {
	return &errs.SchemaValidationError{Tool: t.Meta.Name, Version: t.Meta.Version, Err: err}
}

// Execute renders the prompt and returns the completion as one item.
func (t *Tool) Execute(ctx context.Context, args map[string]any) ([]tool.Item, error) {
	r, err := t.render(args)
	if err != nil {
		return nil, err
	}

	resp, err := t.llm.Generate(ctx, &model.Request{
		Prompt:      r.prompt,
		System:      r.system,
		MaxTokens:   t.config.MaxTokens,
		Temperature: t.config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("llm %s: %w", t.llm.Name(), err)
	}

	content := map[string]any{
		t.config.OutputKey: resp.Text,
		"model":            t.llm.Name(),
	}
	if resp.Usage != nil {
		content["usage"] = map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens(),
		}
	}
	return []tool.Item{{Content: content}}, nil
}

// RoutesSubtool reports whether name is the render subtool.
func (t *Tool) RoutesSubtool(name string) bool { return name == SubtoolRender }

// ValidateArgs renders the prompt so missing template keys and budget
// overruns are rejected before execution.
func (t *Tool) ValidateArgs(subtool string, args map[string]any) error {
	if subtool != "" && subtool != SubtoolRender {
		return nil
	}
	_, err := t.render(args)
	return err
}

// ExecuteSubtool supports "render".
func (t *Tool) ExecuteSubtool(ctx context.Context, name string, args map[string]any) ([]tool.Item, error) {
	if name != SubtoolRender {
		return t.Base.ExecuteSubtool(ctx, name, args)
	}
	r, err := t.render(args)
	if err != nil {
		return nil, err
	}
	content := map[string]any{"prompt": r.prompt}
	if r.system != "" {
		content["system"] = r.system
	}
	if t.counter != nil {
		content["tokens"] = r.tokens
	}
	return []tool.Item{{Content: content}}, nil
}
