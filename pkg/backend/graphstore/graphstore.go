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

// Package graphstore provides graph Backend Clients for the graph retrieval
// strategy. Both stores share one traversal: seed nodes are the explicit
// seeds plus nodes indexed under any query term, and neighbours are reached
// along typed, directed edges.
package graphstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/kadirpekel/conductor/pkg/retriever"
)

// IDKey is the payload key holding the node id.
const IDKey = "id"

// Node is a graph vertex. Text is tokenized into the term index.
type Node struct {
	ID    string         `yaml:"id" json:"id"`
	Text  string         `yaml:"text,omitempty" json:"text,omitempty"`
	Props map[string]any `yaml:"props,omitempty" json:"props,omitempty"`
}

// Edge is a directed, typed relation.
type Edge struct {
	From string `yaml:"from" json:"from"`
	Type string `yaml:"type" json:"type"`
	To   string `yaml:"to" json:"to"`
}

// Client is a graph Backend Client that can report its health.
type Client interface {
	retriever.GraphClient
	Ping(ctx context.Context) error
}

// Store is a Client that accepts writes.
type Store interface {
	Client
	AddNode(ctx context.Context, n Node) error
	AddEdge(ctx context.Context, e Edge) error
}

// Type identifies a graph store implementation.
type Type string

const (
	TypeMemory Type = "memory"
	TypeRedis  Type = "redis"
)

// Config selects a graph store. Nodes and Edges are loaded at construction,
// which lets small fixed graphs live next to the retriever declaration.
type Config struct {
	Type  Type         `yaml:"type" json:"type"`
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	Nodes []Node       `yaml:"nodes,omitempty" json:"nodes,omitempty"`
	Edges []Edge       `yaml:"edges,omitempty" json:"edges,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = TypeMemory
	}
	if c.Type == TypeRedis {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.SetDefaults()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeMemory, TypeRedis:
	default:
		return fmt.Errorf("unknown graph store type %q (valid: memory, redis)", c.Type)
	}
	for i, n := range c.Nodes {
		if n.ID == "" {
			return fmt.Errorf("nodes[%d]: id is required", i)
		}
	}
	return nil
}

// New creates a graph store and loads the configured nodes and edges.
func New(ctx context.Context, cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store Store
	if cfg.Type == TypeRedis {
		store = NewRedis(*cfg.Redis)
	} else {
		store = NewMemory()
	}

	for _, n := range cfg.Nodes {
		if err := store.AddNode(ctx, n); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	for _, e := range cfg.Edges {
		if err := store.AddEdge(ctx, e); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// adjacency is the read side a store exposes to the traversal.
type adjacency interface {
	props(ctx context.Context, id string) (map[string]any, bool, error)
	matching(ctx context.Context, term string) ([]string, error)
	neighbours(ctx context.Context, id string, edgeTypes []string) ([]string, error)
}

// traverse scores nodes reachable from the query pattern.
//
// A seed scores one point per matched term, and explicit seeds score at
// least one. A node reached at hop h inherits its origin's score divided by
// h+1; the best path wins. Filters are exact matches on node properties and
// only remove nodes from the result, never from the walk.
func traverse(ctx context.Context, g adjacency, q retriever.GraphQuery, topK int, filters retriever.Filters) ([]retriever.Record, error) {
	scores := make(map[string]float64)

	for _, term := range q.Terms {
		ids, err := g.matching(ctx, term)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			scores[id]++
		}
	}
	for _, id := range q.Seeds {
		if scores[id] < 1 {
			scores[id] = 1
		}
	}

	// origin is the score of the seed a frontier node was reached from.
	type visit struct {
		id     string
		origin float64
	}
	frontier := make([]visit, 0, len(scores))
	seen := make(map[string]bool, len(scores))
	for id, s := range scores {
		frontier = append(frontier, visit{id: id, origin: s})
		seen[id] = true
	}
	sort.Slice(frontier, func(i, j int) bool { return frontier[i].id < frontier[j].id })

	for hop := 1; hop <= q.Depth && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []visit
		for _, v := range frontier {
			ids, err := g.neighbours(ctx, v.id, q.EdgeTypes)
			if err != nil {
				return nil, err
			}
			s := v.origin / float64(hop+1)
			for _, n := range ids {
				if s > scores[n] {
					scores[n] = s
				}
				if !seen[n] {
					seen[n] = true
					next = append(next, visit{id: n, origin: v.origin})
				}
			}
		}
		frontier = next
	}

	records := make([]retriever.Record, 0, len(scores))
	for id, score := range scores {
		props, ok, err := g.props(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok || !matches(props, filters) {
			continue
		}
		payload := make(map[string]any, len(props)+1)
		for k, v := range props {
			payload[k] = v
		}
		payload[IDKey] = id
		records = append(records, retriever.Record{ID: id, Score: score, Payload: payload})
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].ID < records[j].ID
	})
	if topK > 0 && len(records) > topK {
		records = records[:topK]
	}
	return records, nil
}

func matches(props map[string]any, filters retriever.Filters) bool {
	for k, want := range filters {
		got, ok := props[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func wantEdge(edgeTypes []string, t string) bool {
	if len(edgeTypes) == 0 {
		return true
	}
	for _, e := range edgeTypes {
		if e == t {
			return true
		}
	}
	return false
}
