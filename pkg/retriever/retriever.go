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

// Package retriever provides the strategy-pattern retrieval layer.
//
// A Strategy answers a uniform Query against one backend kind. Concrete
// strategies (vector, graph, relational) translate the query into the native
// form of their Backend Client; the Composite strategy fans out to several
// named strategies and fuses their rankings with reciprocal rank fusion.
// Strategies are held by name in a Registry.
package retriever

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Kind is the closed set of retriever backend kinds.
type Kind string

const (
	KindVector     Kind = "vector"
	KindGraph      Kind = "graph"
	KindRelational Kind = "relational"
	KindHybrid     Kind = "hybrid"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindVector, KindGraph, KindRelational, KindHybrid}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Kinds, k) {
		return k, nil
	}
	return "", fmt.Errorf("unknown retriever kind %q (valid: vector, graph, relational, hybrid)", s)
}

// Capabilities advertised by strategies.
const (
	CapabilitySemantic   = "semantic"
	CapabilityKeyword    = "keyword"
	CapabilityFilterable = "filterable"
	CapabilityTraversal  = "traversal"
	CapabilityFusion     = "fusion"
)

// Metadata describes a registered retriever.
type Metadata struct {
	Name         string         `json:"name"`
	Kind         Kind           `json:"backend_kind"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

// HasCapability reports whether the retriever advertises capability c.
func (m Metadata) HasCapability(c string) bool {
	return slices.Contains(m.Capabilities, c)
}

// Query is the uniform query shape accepted by every strategy.
type Query struct {
	// Text is the natural-language or keyword query.
	Text string `json:"text"`

	// Params carries strategy-specific hints, e.g. "seeds" for graph
	// traversal. Strategies ignore keys they do not understand.
	Params map[string]any `json:"params,omitempty"`
}

// Filters restrict results by payload attributes. Values are matched for
// equality.
type Filters map[string]any

// Provenance records which retriever and backend produced an item.
type Provenance struct {
	Retriever string `json:"retriever"`
	Backend   string `json:"backend"`

	// Sources lists the composite members that returned the item.
	Sources []string `json:"sources,omitempty"`
}

// Item is a single retrieval result. Higher scores are more relevant.
type Item struct {
	ID         string         `json:"id"`
	Score      float64        `json:"score"`
	Payload    map[string]any `json:"payload,omitempty"`
	Provenance Provenance     `json:"provenance"`
}

// Strategy answers queries against one backend.
type Strategy interface {
	Metadata() Metadata
	Retrieve(ctx context.Context, query Query, topK int, filters Filters) ([]Item, error)
}

// Pinger is implemented by strategies able to check backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Embedder turns text into a vector. The concrete model call lives outside
// this package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// rank sorts items by descending score, keeping the incoming order for equal
// scores, and truncates to topK.
func rank(items []Item, topK int) []Item {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	if topK > 0 && len(items) > topK {
		items = items[:topK]
	}
	return items
}

// toItems converts backend records into items stamped with provenance.
func toItems(records []Record, retriever, backend string) []Item {
	items := make([]Item, 0, len(records))
	for _, r := range records {
		items = append(items, Item{
			ID:         r.ID,
			Score:      r.Score,
			Payload:    r.Payload,
			Provenance: Provenance{Retriever: retriever, Backend: backend},
		})
	}
	return items
}

// normalizeQuery trims and collapses whitespace.
func normalizeQuery(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
