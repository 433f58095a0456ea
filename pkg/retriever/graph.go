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
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/kadirpekel/conductor/pkg/errs"
)

// Filter keys consumed by the graph strategy to shape the traversal
// pattern instead of filtering node properties.
const (
	GraphFilterEdgeType = "edge_type"
	GraphFilterDepth    = "depth"

	// GraphParamSeeds is the Query.Params key holding explicit start nodes.
	GraphParamSeeds = "seeds"
)

// GraphConfig configures a GraphStrategy.
type GraphConfig struct {
	// Depth is the default number of hops expanded from matched nodes.
	// Default: 1
	Depth int `yaml:"depth,omitempty"`

	// EdgeTypes restricts traversal to these relationship types. Empty
	// means every type.
	EdgeTypes []string `yaml:"edge_types,omitempty"`

	// MaxDepth caps depth overrides supplied through filters.
	// Default: 3
	MaxDepth int `yaml:"max_depth,omitempty"`
}

func (c *GraphConfig) SetDefaults() {
	if c.Depth <= 0 {
		c.Depth = 1
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 3
	}
	if c.Depth > c.MaxDepth {
		c.MaxDepth = c.Depth
	}
}

// GraphStrategy turns a text query into a traversal pattern: query terms
// select entry nodes, explicit seeds are added, and neighbours are expanded
// along the configured edge types.
type GraphStrategy struct {
	meta    Metadata
	client  GraphClient
	config  GraphConfig
	retryer *Retryer
}

// NewGraphStrategy takes ownership of client; Close releases it.
func NewGraphStrategy(meta Metadata, client GraphClient, cfg GraphConfig, opts ...StrategyOption) (*GraphStrategy, error) {
	if client == nil {
		return nil, fmt.Errorf("graph retriever %q: client is required", meta.Name)
	}
	cfg.SetDefaults()

	meta.Kind = KindGraph
	if len(meta.Capabilities) == 0 {
		meta.Capabilities = []string{CapabilityKeyword, CapabilityTraversal, CapabilityFilterable}
	}

	o := applyStrategyOptions(opts)

	slog.Debug("Graph retriever initialized",
		"retriever", meta.Name,
		"backend", client.Backend(),
		"depth", cfg.Depth)

	return &GraphStrategy{meta: meta, client: client, config: cfg, retryer: o.retryer}, nil
}

func (s *GraphStrategy) Metadata() Metadata { return s.meta }

func (s *GraphStrategy) Retrieve(ctx context.Context, query Query, topK int, filters Filters) ([]Item, error) {
	native, nodeFilters, err := s.pattern(query, filters)
	if err != nil {
		return nil, err
	}
	if len(native.Seeds) == 0 && len(native.Terms) == 0 {
		return []Item{}, nil
	}

	records, err := Do(ctx, s.retryer, s.meta.Name+".fetch", func(ctx context.Context) ([]Record, error) {
		return s.client.Fetch(ctx, native, topK, nodeFilters)
	})
	if err != nil {
		return nil, err
	}
	return rank(toItems(records, s.meta.Name, s.client.Backend()), topK), nil
}

// pattern builds the native traversal query. Edge type and depth filters
// shape the pattern; remaining filters constrain node properties.
func (s *GraphStrategy) pattern(query Query, filters Filters) (GraphQuery, Filters, error) {
	native := GraphQuery{
		Seeds:     stringList(query.Params[GraphParamSeeds]),
		Terms:     Tokenize(query.Text),
		EdgeTypes: s.config.EdgeTypes,
		Depth:     s.config.Depth,
	}

	nodeFilters := make(Filters, len(filters))
	for k, v := range filters {
		switch k {
		case GraphFilterEdgeType:
			native.EdgeTypes = stringList(v)
		case GraphFilterDepth:
			depth, ok := toInt(v)
			if !ok || depth < 0 {
				return GraphQuery{}, nil, &errs.InvalidQueryError{Retriever: s.meta.Name, Err: fmt.Errorf("invalid depth filter %v", v)}
			}
			native.Depth = min(depth, s.config.MaxDepth)
		default:
			nodeFilters[k] = v
		}
	}
	return native, nodeFilters, nil
}

func (s *GraphStrategy) Ping(ctx context.Context) error {
	return pingClient(ctx, s.client)
}

func (s *GraphStrategy) Close() error {
	return s.client.Close()
}

// Tokenize lower-cases text and splits it into unique terms of at least two
// letters or digits, preserving first occurrence order.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func stringList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return []string{fmt.Sprint(val)}
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	default:
		return 0, false
	}
}

var _ Strategy = (*GraphStrategy)(nil)
