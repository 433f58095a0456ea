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
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/retriever"
)

// journalGraph:
//
//	sleep-note --mentions--> insomnia --relates_to--> caffeine
//	walk-note  --mentions--> river
func journalGraph(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for _, n := range []Node{
		{ID: "sleep-note", Text: "Slept badly again", Props: map[string]any{"kind": "entry", "owner": "ana"}},
		{ID: "walk-note", Text: "Evening walk by the river", Props: map[string]any{"kind": "entry", "owner": "bo"}},
		{ID: "insomnia", Text: "insomnia", Props: map[string]any{"kind": "topic"}},
		{ID: "caffeine", Text: "caffeine", Props: map[string]any{"kind": "topic"}},
		{ID: "river", Text: "river", Props: map[string]any{"kind": "place"}},
	} {
		require.NoError(t, s.AddNode(ctx, n))
	}
	for _, e := range []Edge{
		{From: "sleep-note", Type: "mentions", To: "insomnia"},
		{From: "insomnia", Type: "relates_to", To: "caffeine"},
		{From: "walk-note", Type: "mentions", To: "river"},
	} {
		require.NoError(t, s.AddEdge(ctx, e))
	}
}

func recordIDs(records []retriever.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func testTraversal(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("terms seed the walk", func(t *testing.T) {
		records, err := s.Fetch(ctx, retriever.GraphQuery{Terms: []string{"slept", "badly"}, Depth: 2}, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"sleep-note", "insomnia", "caffeine"}, recordIDs(records))
		assert.InDelta(t, 2.0, records[0].Score, 1e-9)
		assert.InDelta(t, 1.0, records[1].Score, 1e-9)
		assert.InDelta(t, 2.0/3, records[2].Score, 1e-9)
		assert.Equal(t, "sleep-note", records[0].Payload[IDKey])
	})

	t.Run("depth limits hops", func(t *testing.T) {
		records, err := s.Fetch(ctx, retriever.GraphQuery{Seeds: []string{"sleep-note"}, Depth: 1}, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"sleep-note", "insomnia"}, recordIDs(records))
	})

	t.Run("edge types restrict expansion", func(t *testing.T) {
		records, err := s.Fetch(ctx, retriever.GraphQuery{
			Seeds: []string{"sleep-note"}, EdgeTypes: []string{"relates_to"}, Depth: 3,
		}, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"sleep-note"}, recordIDs(records))
	})

	t.Run("filters apply to node properties", func(t *testing.T) {
		records, err := s.Fetch(ctx, retriever.GraphQuery{Terms: []string{"river"}, Depth: 1}, 10,
			retriever.Filters{"kind": "entry"})
		require.NoError(t, err)
		assert.Equal(t, []string{"walk-note"}, recordIDs(records))
	})

	t.Run("top_k truncates", func(t *testing.T) {
		records, err := s.Fetch(ctx, retriever.GraphQuery{Terms: []string{"slept"}, Depth: 2}, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"sleep-note"}, recordIDs(records))
	})

	t.Run("unknown seed is dropped", func(t *testing.T) {
		records, err := s.Fetch(ctx, retriever.GraphQuery{Seeds: []string{"ghost"}, Depth: 1}, 10, nil)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestMemory(t *testing.T) {
	s := NewMemory()
	journalGraph(t, s)
	testTraversal(t, s)

	assert.Error(t, s.AddEdge(context.Background(), Edge{From: "ghost", Type: "x", To: "river"}))
	assert.Error(t, s.AddNode(context.Background(), Node{}))
	assert.Equal(t, "memory", s.Backend())
}

func TestMemory_ThroughGraphStrategy(t *testing.T) {
	store, err := New(context.Background(), Config{
		Nodes: []Node{
			{ID: "a", Text: "gratitude list", Props: map[string]any{"owner": "ana"}},
			{ID: "b", Text: "gratitude walk", Props: map[string]any{"owner": "bo"}},
		},
	})
	require.NoError(t, err)

	s, err := retriever.NewGraphStrategy(retriever.Metadata{Name: "kg"}, store, retriever.GraphConfig{})
	require.NoError(t, err)

	items, err := s.Retrieve(context.Background(), retriever.Query{Text: "Gratitude"}, 5, retriever.Filters{"owner": "bo"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, "memory", items[0].Provenance.Backend)
}

func TestConfig(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "neo4j"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Nodes: []Node{{Text: "x"}}})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{
		Nodes: []Node{{ID: "a"}},
		Edges: []Edge{{From: "a", Type: "t", To: "missing"}},
	})
	assert.Error(t, err)

	cfg := Config{Type: TypeRedis}
	cfg.SetDefaults()
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "conductor", cfg.Redis.Prefix)
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	s := NewRedis(RedisConfig{Addr: addr, Prefix: fmt.Sprintf("test-%d", time.Now().UnixNano())})
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(context.Background()))

	journalGraph(t, s)
	testTraversal(t, s)
}
