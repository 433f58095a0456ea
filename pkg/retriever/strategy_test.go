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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorStrategy_EmbedsAndFetches(t *testing.T) {
	client := &fakeClient[VectorQuery]{
		backend: "fake",
		records: []Record{
			{ID: "a", Score: 0.2},
			{ID: "b", Score: 0.9},
			{ID: "c", Score: 0.05},
		},
	}
	var embedded string
	embedder := EmbedderFunc(func(_ context.Context, text string) ([]float32, error) {
		embedded = text
		return []float32{0.1, 0.2}, nil
	})

	s, err := NewVectorStrategy(Metadata{Name: "docs"}, client, embedder, VectorConfig{Collection: "notes", MinScore: 0.1})
	require.NoError(t, err)

	items, err := s.Retrieve(context.Background(), Query{Text: "  morning   pages "}, 5, Filters{"mood": "calm"})
	require.NoError(t, err)

	assert.Equal(t, "morning pages", embedded)
	assert.Equal(t, []string{"b", "a"}, ids(items))
	assert.Equal(t, "docs", items[0].Provenance.Retriever)
	assert.Equal(t, "fake", items[0].Provenance.Backend)

	q := client.lastQuery()
	assert.Equal(t, "notes", q.Collection)
	assert.Equal(t, []float32{0.1, 0.2}, q.Vector)
	assert.Equal(t, Filters{"mood": "calm"}, client.filters[0])

	assert.Equal(t, KindVector, s.Metadata().Kind)
	assert.True(t, s.Metadata().HasCapability(CapabilitySemantic))

	require.NoError(t, s.Close())
	assert.True(t, client.closed)
}

func TestVectorStrategy_EmptyQuery(t *testing.T) {
	client := &fakeClient[VectorQuery]{backend: "fake"}
	s, err := NewVectorStrategy(Metadata{Name: "docs"}, client, constEmbedder(1), VectorConfig{})
	require.NoError(t, err)

	items, err := s.Retrieve(context.Background(), Query{Text: "   "}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, client.queries)
}

func TestVectorStrategy_EmbedderFailure(t *testing.T) {
	client := &fakeClient[VectorQuery]{backend: "fake"}
	embedder := EmbedderFunc(func(context.Context, string) ([]float32, error) {
		return nil, errors.New("model offline")
	})
	s, err := NewVectorStrategy(Metadata{Name: "docs"}, client, embedder, VectorConfig{})
	require.NoError(t, err)

	_, err = s.Retrieve(context.Background(), Query{Text: "q"}, 5, nil)
	assert.ErrorContains(t, err, "model offline")
}

func TestVectorStrategy_RetriesTransientFailures(t *testing.T) {
	client := &fakeClient[VectorQuery]{
		backend: "fake",
		records: []Record{{ID: "a", Score: 1}},
		errs:    []error{errors.New("connection reset by peer"), nil},
	}
	s, err := NewVectorStrategy(Metadata{Name: "docs"}, client, constEmbedder(1), VectorConfig{},
		WithRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}))
	require.NoError(t, err)

	items, err := s.Retrieve(context.Background(), Query{Text: "q"}, 5, nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Len(t, client.queries, 2)
}

func TestVectorStrategy_RequiresDependencies(t *testing.T) {
	_, err := NewVectorStrategy(Metadata{Name: "v"}, nil, constEmbedder(1), VectorConfig{})
	assert.Error(t, err)
	_, err = NewVectorStrategy(Metadata{Name: "v"}, &fakeClient[VectorQuery]{}, nil, VectorConfig{})
	assert.Error(t, err)
}

func TestGraphStrategy_TranslatesFiltersIntoPattern(t *testing.T) {
	client := &fakeClient[GraphQuery]{
		backend: "memory",
		records: []Record{{ID: "n1", Score: 1}, {ID: "n2", Score: 2}},
	}
	s, err := NewGraphStrategy(Metadata{Name: "kg"}, client, GraphConfig{Depth: 1, EdgeTypes: []string{"mentions"}, MaxDepth: 2})
	require.NoError(t, err)

	items, err := s.Retrieve(context.Background(),
		Query{Text: "Sleep and sleep quality, a note", Params: map[string]any{"seeds": []any{"entry-7"}}},
		10,
		Filters{"edge_type": "relates_to", "depth": 5, "owner": "ana"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"n2", "n1"}, ids(items))

	q := client.lastQuery()
	assert.Equal(t, []string{"entry-7"}, q.Seeds)
	assert.Equal(t, []string{"sleep", "and", "quality", "note"}, q.Terms)
	assert.Equal(t, []string{"relates_to"}, q.EdgeTypes)
	assert.Equal(t, 2, q.Depth, "depth override is capped by max_depth")
	assert.Equal(t, Filters{"owner": "ana"}, client.filters[0])
}

func TestGraphStrategy_InvalidDepth(t *testing.T) {
	s, err := NewGraphStrategy(Metadata{Name: "kg"}, &fakeClient[GraphQuery]{}, GraphConfig{})
	require.NoError(t, err)

	_, err = s.Retrieve(context.Background(), Query{Text: "x y"}, 3, Filters{"depth": "deep"})
	assert.Error(t, err)
}

func TestGraphStrategy_NothingToMatch(t *testing.T) {
	client := &fakeClient[GraphQuery]{}
	s, err := NewGraphStrategy(Metadata{Name: "kg"}, client, GraphConfig{})
	require.NoError(t, err)

	items, err := s.Retrieve(context.Background(), Query{Text: "a !"}, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, client.queries)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "wörld", "42"}, Tokenize("Hello, WÖRLD! 42 a hello"))
	assert.Empty(t, Tokenize(""))
}

func TestRelationalStrategy_Build(t *testing.T) {
	cfg := RelationalConfig{
		Table:         "entries",
		SearchColumns: []string{"title", "body"},
		Dialect:       "postgres",
	}

	s, err := NewRelationalStrategy(Metadata{Name: "sql"}, &fakeClient[SQLQuery]{}, cfg)
	require.NoError(t, err)

	q, err := s.Build(Query{Text: "gratitude"}, 5, Filters{"id": 3})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id AS _id, CASE WHEN LOWER(title) LIKE $1 THEN 1 ELSE 0 END + CASE WHEN LOWER(body) LIKE $2 THEN 1 ELSE 0 END AS _score, id, title, body"+
			" FROM entries WHERE (LOWER(title) LIKE $3 OR LOWER(body) LIKE $4) AND id = $5 ORDER BY _score DESC, _id ASC LIMIT 5",
		q.Statement)
	assert.Equal(t, []any{"%gratitude%", "%gratitude%", "%gratitude%", "%gratitude%", 3}, q.Args)
}

func TestRelationalStrategy_BuildQuestionMarkDialect(t *testing.T) {
	s, err := NewRelationalStrategy(Metadata{Name: "sql"}, &fakeClient[SQLQuery]{}, RelationalConfig{
		Table: "entries", SearchColumns: []string{"title"},
	})
	require.NoError(t, err)

	q, err := s.Build(Query{}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id AS _id, 0 AS _score, id, title FROM entries ORDER BY _score DESC, _id ASC", q.Statement)

	q, err = s.Build(Query{Text: "tea"}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(q.Statement, "?"))
}

func TestRelationalStrategy_RejectsUnknownFilter(t *testing.T) {
	s, err := NewRelationalStrategy(Metadata{Name: "sql"}, &fakeClient[SQLQuery]{}, RelationalConfig{
		Table: "entries", SearchColumns: []string{"title"},
	})
	require.NoError(t, err)

	_, err = s.Build(Query{Text: "x"}, 2, Filters{"password; DROP TABLE": 1})
	assert.Error(t, err)
}

func TestRelationalConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RelationalConfig
		wantErr bool
	}{
		{name: "valid", cfg: RelationalConfig{Table: "public.entries", SearchColumns: []string{"title"}}},
		{name: "missing table", cfg: RelationalConfig{SearchColumns: []string{"title"}}, wantErr: true},
		{name: "no search columns", cfg: RelationalConfig{Table: "t"}, wantErr: true},
		{name: "bad identifier", cfg: RelationalConfig{Table: "t; --", SearchColumns: []string{"a"}}, wantErr: true},
		{name: "bad dialect", cfg: RelationalConfig{Table: "t", SearchColumns: []string{"a"}, Dialect: "oracle"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.SetDefaults()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetry(t *testing.T) {
	t.Run("non retryable fails fast", func(t *testing.T) {
		calls := 0
		r := NewRetryer(RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond})
		_, err := Do(context.Background(), r, "op", func(context.Context) (int, error) {
			calls++
			return 0, errors.New("syntax error")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		r := NewRetryer(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
		_, err := Do(context.Background(), r, "op", func(context.Context) (int, error) {
			calls++
			return 0, errors.New("503 service unavailable")
		})
		var re *RetryError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, 3, re.Attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Do(ctx, NewRetryer(RetryConfig{}), "op", func(context.Context) (int, error) {
			return 1, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("delay is capped", func(t *testing.T) {
		r := NewRetryer(RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond, Multiplier: 10})
		assert.LessOrEqual(t, r.delay(4), 150*time.Millisecond)
	})
}
