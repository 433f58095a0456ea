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

// Package retrievaltool provides tools backed by the retriever registry.
//
// A retrieval tool reads a query, an optional top_k and optional filters
// from its arguments, runs one named retriever and maps every retrieved
// item into the declared output shape. The same tool serves backend_kind
// "hybrid" when the named retriever is a composite.
package retrievaltool

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/kadirpekel/conductor/pkg/retriever"
	"github.com/kadirpekel/conductor/pkg/tool"
)

// Argument names of the default input schema.
const (
	ArgQuery   = "query"
	ArgTopK    = "top_k"
	ArgFilters = "filters"
)

const (
	DefaultTopK = 5
	DefaultMaxK = 50
)

// Config configures a retrieval tool.
type Config struct {
	// Retriever names the strategy to query (required).
	Retriever string `yaml:"retriever"`

	// TopK is used when the caller passes no top_k.
	TopK int `yaml:"top_k,omitempty"`

	// MaxTopK caps caller-supplied top_k.
	MaxTopK int `yaml:"max_top_k,omitempty"`

	// Filters are always applied. Caller filters cannot override them.
	Filters map[string]any `yaml:"filters,omitempty"`

	// FilterArgs lists top-level arguments copied into filters when present.
	FilterArgs []string `yaml:"filter_args,omitempty"`

	// Fields lists the payload fields kept in each output item. When empty
	// they are taken from the output schema; when that declares none the
	// whole payload is kept.
	Fields []string `yaml:"fields,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	if c.MaxTopK == 0 {
		c.MaxTopK = DefaultMaxK
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Retriever == "" {
		return fmt.Errorf("retriever is required")
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.MaxTopK < c.TopK {
		return fmt.Errorf("max_top_k (%d) must be at least top_k (%d)", c.MaxTopK, c.TopK)
	}
	return nil
}

// Args is the default argument shape. Its schema is used when a tool
// declares no input schema.
type Args struct {
	Query   string         `json:"query" jsonschema:"required,minLength=1,description=Search query"`
	TopK    int            `json:"top_k,omitempty" jsonschema:"minimum=1,description=Maximum number of results"`
	Filters map[string]any `json:"filters,omitempty" jsonschema:"description=Equality filters on result attributes"`
}

// Tool queries one retriever.
type Tool struct {
	tool.Base
	retrievers *retriever.Registry
	config     Config
	fields     []string
}

// New creates a retrieval tool. The retriever must already be registered:
// retrievers are built before the tools that use them.
func New(meta tool.Metadata, retrievers *retriever.Registry, cfg Config) (*Tool, error) {
	if retrievers == nil {
		return nil, fmt.Errorf("tool %s: retriever registry is required", meta.Name)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tool %s: %w", meta.Name, err)
	}
	if _, err := retrievers.Resolve(cfg.Retriever); err != nil {
		return nil, fmt.Errorf("tool %s: %w", meta.Name, err)
	}

	if meta.BackendKind == "" {
		meta.BackendKind = tool.BackendRetrieval
	}
	if meta.BackendKind != tool.BackendRetrieval && meta.BackendKind != tool.BackendHybrid {
		return nil, fmt.Errorf("tool %s: backend kind %q is not retrieval or hybrid", meta.Name, meta.BackendKind)
	}
	if len(meta.InputSchema) == 0 {
		schema, err := tool.SchemaFor[Args]()
		if err != nil {
			return nil, err
		}
		meta.InputSchema = schema
	}

	fields := slices.Clone(cfg.Fields)
	if len(fields) == 0 {
		fields = OutputFields(meta.OutputSchema)
	}

	return &Tool{
		Base:       tool.Base{Meta: meta},
		retrievers: retrievers,
		config:     cfg,
		fields:     fields,
	}, nil
}

// Retriever returns the name of the queried retriever.
func (t *Tool) Retriever() string { return t.config.Retriever }

// Execute runs the query and maps the results.
func (t *Tool) Execute(ctx context.Context, args map[string]any) ([]tool.Item, error) {
	topK, err := t.topK(args)
	if err != nil {
		return nil, err
	}

	items, err := t.retrievers.Retrieve(ctx, t.config.Retriever, t.query(args), topK, t.filters(args))
	if err != nil {
		return nil, err
	}

	out := make([]tool.Item, len(items))
	for i, it := range items {
		out[i] = MapItem(it, t.fields)
	}
	return out, nil
}

// query passes every argument that is not the query, top_k or a filter
// through as a strategy parameter, e.g. "seeds" for graph traversal.
func (t *Tool) query(args map[string]any) retriever.Query {
	text, _ := args[ArgQuery].(string)
	q := retriever.Query{Text: text}

	params := make(map[string]any)
	for k, v := range args {
		switch k {
		case ArgQuery, ArgTopK, ArgFilters:
			continue
		}
		if slices.Contains(t.config.FilterArgs, k) {
			continue
		}
		params[k] = v
	}
	if len(params) > 0 {
		q.Params = params
	}
	return q
}

func (t *Tool) topK(args map[string]any) (int, error) {
	raw, ok := args[ArgTopK]
	if !ok || raw == nil {
		return t.config.TopK, nil
	}
	k, err := toInt(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", ArgTopK, err)
	}
	if k < 1 {
		return 0, fmt.Errorf("%s must be positive, got %d", ArgTopK, k)
	}
	return min(k, t.config.MaxTopK), nil
}

// filters merges caller filters, filter arguments and the static filters,
// in increasing precedence.
func (t *Tool) filters(args map[string]any) retriever.Filters {
	out := retriever.Filters{}
	if caller, ok := args[ArgFilters].(map[string]any); ok {
		maps.Copy(out, caller)
	}
	for _, name := range t.config.FilterArgs {
		if v, ok := args[name]; ok {
			out[name] = v
		}
	}
	maps.Copy(out, t.config.Filters)
	if len(out) == 0 {
		return nil
	}
	return out
}

// MapItem converts a retrieved item into a tool item keeping only fields.
// A nil fields keeps the whole payload.
func MapItem(it retriever.Item, fields []string) tool.Item {
	prov := it.Provenance
	prov.Sources = slices.Clone(prov.Sources)

	content := make(map[string]any, len(it.Payload))
	if fields == nil {
		maps.Copy(content, it.Payload)
	} else {
		for _, f := range fields {
			if v, ok := it.Payload[f]; ok {
				content[f] = v
			}
		}
	}

	return tool.Item{
		ID:         it.ID,
		Score:      it.Score,
		Content:    content,
		Provenance: &prov,
	}
}

// OutputFields returns the property names an output schema declares for one
// item. Both an object schema and an array-of-objects schema are accepted.
// It returns nil when no properties are declared.
func OutputFields(schema map[string]any) []string {
	if schema == nil {
		return nil
	}
	if items, ok := schema["items"].(map[string]any); ok {
		schema = items
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(props))
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}
