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

// Package config loads the conductor runtime configuration.
//
// A configuration declares the model collaborators, the retrievers and the
// versioned tools that a runtime registers at startup:
//
//	logger:
//	  level: info
//	execution:
//	  default_timeout: 30s
//	retrievers:
//	  journal:
//	    kind: vector
//	    config:
//	      backend: chromem
//	      collection: entries
//	tools:
//	  - name: journal_search
//	    version: 1.0.0
//	    kind: retrieval
//	    config:
//	      retriever: journal
//
// Sources are pluggable (see package provider); values support ${VAR},
// ${VAR:-default} and $VAR expansion, with $$ producing a literal dollar.
package config

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/kadirpekel/conductor/pkg/model"
	"github.com/kadirpekel/conductor/pkg/retriever"
	"github.com/kadirpekel/conductor/pkg/telemetry"
	"github.com/kadirpekel/conductor/pkg/tool"
)

// DefaultName names the embedder and LLM created when none is configured.
const DefaultName = "default"

// Config is the root configuration.
type Config struct {
	Logger        LoggerConfig     `yaml:"logger,omitempty"`
	Observability telemetry.Config `yaml:"observability,omitempty"`
	Server        ServerConfig     `yaml:"server,omitempty"`
	Execution     ExecutionConfig  `yaml:"execution,omitempty"`

	// Embedders and LLMs are referenced by name from retriever and tool
	// configs. A "default" entry is created for each when the map is empty.
	Embedders map[string]*model.EmbedderConfig `yaml:"embedders,omitempty"`
	LLMs      map[string]*model.LLMConfig      `yaml:"llms,omitempty"`

	Retrievers map[string]*RetrieverConfig `yaml:"retrievers,omitempty"`
	Tools      []*ToolConfig               `yaml:"tools,omitempty"`
}

// ExecutionConfig configures the tool registry execute wrapper.
type ExecutionConfig struct {
	// DefaultTimeout bounds tools that declare no timeout of their own.
	// Default: 30s
	DefaultTimeout time.Duration `yaml:"default_timeout,omitempty"`
}

// DefaultExecutionTimeout is applied when execution.default_timeout is unset.
const DefaultExecutionTimeout = 30 * time.Second

// RetrieverConfig declares one retriever. Config is decoded by the factory
// registered for Kind.
type RetrieverConfig struct {
	Kind         string                 `yaml:"kind"`
	Capabilities []string               `yaml:"capabilities,omitempty"`
	Retry        *retriever.RetryConfig `yaml:"retry,omitempty"`
	Config       map[string]any         `yaml:"config,omitempty"`
}

// ToolConfig declares one tool version. Config is decoded by the factory
// registered for Kind.
type ToolConfig struct {
	Name           string         `yaml:"name"`
	Version        string         `yaml:"version"`
	Description    string         `yaml:"description,omitempty"`
	Kind           string         `yaml:"kind"`
	OwnerDomain    string         `yaml:"owner_domain,omitempty"`
	Tags           []string       `yaml:"tags,omitempty"`
	EffectBoundary string         `yaml:"effect_boundary,omitempty"`
	Subtools       []string       `yaml:"subtools,omitempty"`
	InputSchema    map[string]any `yaml:"input_schema,omitempty"`
	OutputSchema   map[string]any `yaml:"output_schema,omitempty"`
	Timeout        time.Duration  `yaml:"timeout,omitempty"`
	Config         map[string]any `yaml:"config,omitempty"`
}

// SetDefaults applies default values throughout the configuration.
func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	c.Observability.SetDefaults()
	c.Server.SetDefaults()
	if c.Execution.DefaultTimeout <= 0 {
		c.Execution.DefaultTimeout = DefaultExecutionTimeout
	}

	if len(c.Embedders) == 0 {
		c.Embedders = map[string]*model.EmbedderConfig{DefaultName: {}}
	}
	for name, e := range c.Embedders {
		if e == nil {
			e = &model.EmbedderConfig{}
			c.Embedders[name] = e
		}
		e.SetDefaults()
	}

	if len(c.LLMs) == 0 {
		c.LLMs = map[string]*model.LLMConfig{DefaultName: {}}
	}
	for name, l := range c.LLMs {
		if l == nil {
			l = &model.LLMConfig{}
			c.LLMs[name] = l
		}
		l.SetDefaults()
	}

	for _, r := range c.Retrievers {
		if r != nil && r.Retry != nil {
			r.Retry.SetDefaults()
		}
	}
	for _, t := range c.Tools {
		if t != nil && t.Kind == "" {
			t.Kind = string(tool.BackendWorkflow)
		}
	}
}

// Validate checks the configuration. Cross references between retrievers
// and tools are resolved by the builder.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if c.Execution.DefaultTimeout < 0 {
		return fmt.Errorf("execution: default_timeout cannot be negative")
	}

	for _, name := range slices.Sorted(maps.Keys(c.Embedders)) {
		if err := c.Embedders[name].Validate(); err != nil {
			return fmt.Errorf("embedder %q: %w", name, err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(c.LLMs)) {
		if err := c.LLMs[name].Validate(); err != nil {
			return fmt.Errorf("llm %q: %w", name, err)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(c.Retrievers)) {
		r := c.Retrievers[name]
		if r == nil {
			return fmt.Errorf("retriever %q: configuration is empty", name)
		}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("retriever %q: %w", name, err)
		}
	}

	seen := make(map[string]bool, len(c.Tools))
	for i, t := range c.Tools {
		if t == nil {
			return fmt.Errorf("tools[%d]: configuration is empty", i)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tools[%d]: %w", i, err)
		}
		key := t.Name + "@" + t.Version
		if seen[key] {
			return fmt.Errorf("tools[%d]: duplicate tool %s", i, key)
		}
		seen[key] = true
	}
	return nil
}

// Validate checks a retriever declaration.
func (c *RetrieverConfig) Validate() error {
	if _, err := retriever.ParseKind(c.Kind); err != nil {
		return err
	}
	if c.Retry != nil {
		if err := c.Retry.Validate(); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
	}
	return nil
}

// Validate checks a tool declaration.
func (c *ToolConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Version == "" {
		return fmt.Errorf("tool %s: version is required", c.Name)
	}
	if _, err := tool.ParseBackendKind(c.Kind); err != nil {
		return fmt.Errorf("tool %s: %w", c.Key(), err)
	}
	if c.EffectBoundary != "" {
		if _, err := tool.ParseEffectBoundary(c.EffectBoundary); err != nil {
			return fmt.Errorf("tool %s: %w", c.Key(), err)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("tool %s: timeout cannot be negative", c.Key())
	}
	return nil
}

// Key returns name@version.
func (c *ToolConfig) Key() string { return c.Name + "@" + c.Version }

// Metadata converts the declaration into tool metadata. Call it after
// Validate; unparseable kinds are left empty.
func (c *ToolConfig) Metadata() tool.Metadata {
	kind, _ := tool.ParseBackendKind(c.Kind)
	var effect tool.EffectBoundary
	if c.EffectBoundary != "" {
		effect, _ = tool.ParseEffectBoundary(c.EffectBoundary)
	}
	return tool.Metadata{
		Name:           c.Name,
		Version:        c.Version,
		Description:    c.Description,
		InputSchema:    maps.Clone(c.InputSchema),
		OutputSchema:   maps.Clone(c.OutputSchema),
		BackendKind:    kind,
		OwnerDomain:    c.OwnerDomain,
		Tags:           slices.Clone(c.Tags),
		EffectBoundary: effect,
		Subtools:       slices.Clone(c.Subtools),
	}
}

// Metadata converts the declaration into retriever metadata.
func (c *RetrieverConfig) Metadata(name string) retriever.Metadata {
	kind, _ := retriever.ParseKind(c.Kind)
	return retriever.Metadata{
		Name:         name,
		Kind:         kind,
		Capabilities: slices.Clone(c.Capabilities),
		Config:       maps.Clone(c.Config),
	}
}
