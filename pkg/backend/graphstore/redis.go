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
	"errors"
	"fmt"
	"path"

	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/conductor/pkg/retriever"
)

// RedisConfig configures the redis graph store.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int    `yaml:"db,omitempty" json:"db,omitempty"`

	// Prefix namespaces every key.
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// SetDefaults applies default values.
func (c *RedisConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.Prefix == "" {
		c.Prefix = "conductor"
	}
}

// Redis stores the graph as redis hashes and sets.
//
// The keys namespace is organized as follows:
//   - `/<prefix>/graph/node/<id>` hash of node properties
//   - `/<prefix>/graph/term/<term>` set of node ids indexed under term
//   - `/<prefix>/graph/types/<id>` set of edge types leaving a node
//   - `/<prefix>/graph/edge/<id>/<type>` set of edge targets
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a redis graph store with its own client.
func NewRedis(cfg RedisConfig) *Redis {
	cfg.SetDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{client: client, prefix: cfg.Prefix}
}

func (r *Redis) nodeKey(id string) string { return path.Join("/", r.prefix, "graph", "node", id) }
func (r *Redis) termKey(term string) string { return path.Join("/", r.prefix, "graph", "term", term) }
func (r *Redis) typesKey(id string) string { return path.Join("/", r.prefix, "graph", "types", id) }
func (r *Redis) edgeKey(id, edge string) string { return path.Join("/", r.prefix, "graph", "edge", id, edge) }

// AddNode stores a node and indexes its text. Property values are stored
// as strings.
func (r *Redis) AddNode(ctx context.Context, n Node) error {
	if n.ID == "" {
		return fmt.Errorf("graph: node id is required")
	}

	fields := make(map[string]any, len(n.Props)+1)
	for k, v := range n.Props {
		fields[k] = fmt.Sprint(v)
	}
	fields[IDKey] = n.ID

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.nodeKey(n.ID))
	pipe.HSet(ctx, r.nodeKey(n.ID), fields)
	for _, t := range retriever.Tokenize(n.Text) {
		pipe.SAdd(ctx, r.termKey(t), n.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("graph: failed to store node %s: %w", n.ID, err)
	}
	return nil
}

// AddEdge stores a directed edge.
func (r *Redis) AddEdge(ctx context.Context, e Edge) error {
	if e.From == "" || e.To == "" || e.Type == "" {
		return fmt.Errorf("graph: edge requires from, to and type")
	}
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.typesKey(e.From), e.Type)
	pipe.SAdd(ctx, r.edgeKey(e.From, e.Type), e.To)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("graph: failed to store edge %s -%s-> %s: %w", e.From, e.Type, e.To, err)
	}
	return nil
}

func (r *Redis) props(ctx context.Context, id string) (map[string]any, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.nodeKey(id)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	props := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == IDKey {
			continue
		}
		props[k] = v
	}
	return props, true, nil
}

func (r *Redis) members(ctx context.Context, key string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}

func (r *Redis) matching(ctx context.Context, term string) ([]string, error) {
	return r.members(ctx, r.termKey(term))
}

func (r *Redis) neighbours(ctx context.Context, id string, edgeTypes []string) ([]string, error) {
	types := edgeTypes
	if len(types) == 0 {
		var err error
		if types, err = r.members(ctx, r.typesKey(id)); err != nil {
			return nil, err
		}
	}
	var out []string
	for _, t := range types {
		ids, err := r.members(ctx, r.edgeKey(id, t))
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

// Fetch runs the shared traversal against redis.
func (r *Redis) Fetch(ctx context.Context, q retriever.GraphQuery, topK int, filters retriever.Filters) ([]retriever.Record, error) {
	return traverse(ctx, r, q, topK, filters)
}

func (r *Redis) Backend() string { return "redis" }

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
