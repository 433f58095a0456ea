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

// Package model defines the opaque embedding and LLM contracts the
// orchestration layer calls into.
//
// Concrete model services live outside this module. They are injected by
// the embedding program; this package only ships deterministic development
// implementations so a configuration runs without external services.
package model

import (
	"context"
	"fmt"
	"strings"
)

// Embedder turns text into a dense vector. It satisfies retriever.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LLM is the interface for language model callers.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// Generate produces a completion for the request.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single-prompt completion request.
type Request struct {
	Prompt string

	// System is an optional system instruction.
	System string

	// MaxTokens caps the completion length. Zero leaves it to the model.
	MaxTokens int

	// Temperature overrides the model default when set.
	Temperature *float64
}

// Response is the opaque text returned by an LLM.
type Response struct {
	Text  string
	Usage *Usage
}

// Usage reports token accounting when the model provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens returns prompt plus completion tokens.
func (u *Usage) TotalTokens() int {
	if u == nil {
		return 0
	}
	return u.PromptTokens + u.CompletionTokens
}

// LLMFunc adapts a function to the LLM interface.
type LLMFunc func(ctx context.Context, req *Request) (*Response, error)

func (f LLMFunc) Name() string { return "func" }

func (f LLMFunc) Generate(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Type identifies a built-in model implementation in configuration.
type Type string

const (
	TypeHashing Type = "hashing"
	TypeEcho    Type = "echo"
)

// EmbedderConfig configures a built-in embedder.
type EmbedderConfig struct {
	Type      Type `yaml:"type" json:"type"`
	Dimension int  `yaml:"dimension,omitempty" json:"dimension,omitempty"`
}

// SetDefaults applies default values.
func (c *EmbedderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = TypeHashing
	}
	if c.Dimension <= 0 {
		c.Dimension = DefaultDimension
	}
}

// Validate checks the embedder configuration.
func (c *EmbedderConfig) Validate() error {
	if c.Type != TypeHashing {
		return fmt.Errorf("unsupported embedder type %q (built-in: %s)", c.Type, TypeHashing)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive")
	}
	return nil
}

// LLMConfig configures a built-in LLM caller.
type LLMConfig struct {
	Type Type `yaml:"type" json:"type"`

	// MaxPromptTokens rejects prompts above this budget. Zero disables it.
	MaxPromptTokens int `yaml:"max_prompt_tokens,omitempty" json:"max_prompt_tokens,omitempty"`

	// Encoding is the tiktoken encoding used to count prompt tokens.
	Encoding string `yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = TypeEcho
	}
	if c.Encoding == "" {
		c.Encoding = DefaultEncoding
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	if c.Type != TypeEcho {
		return fmt.Errorf("unsupported llm type %q (built-in: %s)", c.Type, TypeEcho)
	}
	if c.MaxPromptTokens < 0 {
		return fmt.Errorf("max_prompt_tokens cannot be negative")
	}
	return nil
}

// NewEmbedder builds a built-in embedder from configuration.
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewHashingEmbedder(cfg.Dimension), nil
}

// NewLLM builds a built-in LLM caller from configuration.
func NewLLM(name string, cfg LLMConfig) (LLM, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EchoLLM{ModelName: strings.TrimSpace(name)}, nil
}
