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

// Package functiontool builds tools from typed Go functions, with the input
// schema generated from struct tags.
//
// # Basic Usage
//
//	type LookupArgs struct {
//	    EntryID string `json:"entry_id" jsonschema:"required,description=Journal entry ID"`
//	}
//
//	lookup, err := functiontool.New(
//	    functiontool.Config{
//	        Name:        "lookup_entry",
//	        Version:     "1.0.0",
//	        Description: "Fetch one journal entry",
//	        Kind:        tool.BackendRetrieval,
//	    },
//	    func(ctx context.Context, args LookupArgs) ([]tool.Item, error) {
//	        // Implementation
//	    },
//	)
//
// Use it for programmatic tools registered next to the configured ones. For
// tools with subtools or dynamic schemas, implement tool.Tool directly.
package functiontool

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/conductor/pkg/tool"
)

// Config defines the descriptor of a function tool.
type Config struct {
	// Name and Version key the tool in the registry (required).
	Name    string
	Version string

	// Description explains what the tool does (required).
	Description string

	// Kind defaults to workflow.
	Kind tool.BackendKind

	OwnerDomain    string
	Tags           []string
	EffectBoundary tool.EffectBoundary
	OutputSchema   map[string]any

	// Timeout bounds each execution when the caller passes none.
	Timeout time.Duration
}

// Func is the typed function a tool wraps.
type Func[Args any] func(ctx context.Context, args Args) ([]tool.Item, error)

// New creates a tool from a typed function.
//
// Args must be a struct with json and jsonschema tags describing the
// parameters; its generated schema becomes the tool's input schema.
func New[Args any](cfg Config, fn Func[Args]) (tool.Tool, error) {
	return newFunctionTool(cfg, fn, nil)
}

// NewWithValidation creates a tool that runs validate on the decoded
// arguments before fn. Use it for checks struct tags cannot express.
//
// Example:
//
//	functiontool.NewWithValidation(cfg, fn, func(args RangeArgs) error {
//	    if args.From.After(args.To) {
//	        return fmt.Errorf("from must not be after to")
//	    }
//	    return nil
//	})
func NewWithValidation[Args any](cfg Config, fn Func[Args], validate func(Args) error) (tool.Tool, error) {
	if validate == nil {
		return nil, fmt.Errorf("validation function is required")
	}
	return newFunctionTool(cfg, fn, validate)
}

func newFunctionTool[Args any](cfg Config, fn Func[Args], validate func(Args) error) (*functionTool[Args], error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %s: function is required", cfg.Name)
	}

	schema, err := tool.SchemaFor[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	kind := cfg.Kind
	if kind == "" {
		kind = tool.BackendWorkflow
	}

	return &functionTool[Args]{
		Base: tool.Base{
			Meta: tool.Metadata{
				Name:           cfg.Name,
				Version:        cfg.Version,
				Description:    cfg.Description,
				InputSchema:    schema,
				OutputSchema:   cfg.OutputSchema,
				BackendKind:    kind,
				OwnerDomain:    cfg.OwnerDomain,
				Tags:           cfg.Tags,
				EffectBoundary: cfg.EffectBoundary,
			},
			Timeout: cfg.Timeout,
		},
		fn:       fn,
		validate: validate,
	}, nil
}

// functionTool implements tool.Tool by wrapping a typed function.
type functionTool[Args any] struct {
	tool.Base
	fn       Func[Args]
	validate func(Args) error
}

// Execute decodes args into Args and calls the function.
func (t *functionTool[Args]) Execute(ctx context.Context, args map[string]any) ([]tool.Item, error) {
	typed, err := tool.Decode[Args](args)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", t.Meta.Name, err)
	}

	if t.validate != nil {
		if err := t.validate(typed); err != nil {
			return nil, fmt.Errorf("validation failed for %s: %w", t.Meta.Name, err)
		}
	}

	return t.fn(ctx, typed)
}

func validateConfig(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if cfg.Version == "" {
		return fmt.Errorf("tool %s: version is required", cfg.Name)
	}
	if cfg.Description == "" {
		return fmt.Errorf("tool %s: description is required", cfg.Name)
	}
	return nil
}

var _ tool.Tool = (*functionTool[struct{}])(nil)
