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

package graphstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kadirpekel/conductor/pkg/retriever"
)

// Memory is an in-process graph store.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]map[string]any
	terms map[string]map[string]struct{}
	edges map[string]map[string][]string // from -> type -> targets
}

// NewMemory creates an empty in-memory graph.
func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[string]map[string]any),
		terms: make(map[string]map[string]struct{}),
		edges: make(map[string]map[string][]string),
	}
}

// AddNode inserts or replaces a node and indexes its text.
func (m *Memory) AddNode(_ context.Context, n Node) error {
	if n.ID == "" {
		return fmt.Errorf("graph: node id is required")
	}
	props := make(map[string]any, len(n.Props))
	for k, v := range n.Props {
		props[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.ID] = props
	for _, t := range retriever.Tokenize(n.Text) {
		set, ok := m.terms[t]
		if !ok {
			set = make(map[string]struct{})
			m.terms[t] = set
		}
		set[n.ID] = struct{}{}
	}
	return nil
}

// AddEdge inserts a directed edge. Both endpoints must exist.
func (m *Memory) AddEdge(_ context.Context, e Edge) error {
	if e.Type == "" {
		return fmt.Errorf("graph: edge type is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[e.From]; !ok {
		return fmt.Errorf("graph: unknown node %q", e.From)
	}
	if _, ok := m.nodes[e.To]; !ok {
		return fmt.Errorf("graph: unknown node %q", e.To)
	}
	byType, ok := m.edges[e.From]
	if !ok {
		byType = make(map[string][]string)
		m.edges[e.From] = byType
	}
	for _, existing := range byType[e.Type] {
		if existing == e.To {
			return nil
		}
	}
	byType[e.Type] = append(byType[e.Type], e.To)
	return nil
}

func (m *Memory) props(_ context.Context, id string) (map[string]any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.nodes[id]
	return p, ok, nil
}

func (m *Memory) matching(_ context.Context, term string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.terms[term]))
	for id := range m.terms[term] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) neighbours(_ context.Context, id string, edgeTypes []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]string, 0, len(m.edges[id]))
	for t := range m.edges[id] {
		if wantEdge(edgeTypes, t) {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	var out []string
	for _, t := range types {
		out = append(out, m.edges[id][t]...)
	}
	return out, nil
}

// Fetch runs the shared traversal over the in-memory graph.
func (m *Memory) Fetch(ctx context.Context, q retriever.GraphQuery, topK int, filters retriever.Filters) ([]retriever.Record, error) {
	return traverse(ctx, m, q, topK, filters)
}

func (m *Memory) Backend() string { return "memory" }

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }
