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

package retrievaltool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/errs"
	"github.com/kadirpekel/conductor/pkg/retriever"
	"github.com/kadirpekel/conductor/pkg/tool"
)

// recordingStrategy returns fixed items and remembers the last call.
type recordingStrategy struct {
	name  string
	items []retriever.Item
	err   error

	query   retriever.Query
	topK    int
	filters retriever.Filters
}

func (s *recordingStrategy) Metadata() retriever.Metadata {
	return retriever.Metadata{Name: s.name, Kind: retriever.KindVector}
}

func (s *recordingStrategy) Retrieve(_ context.Context, q retriever.Query, topK int, f retriever.Filters) ([]retriever.Item, error) {
	s.query, s.topK, s.filters = q, topK, f
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func journalEntries() []retriever.Item {
	return []retriever.Item{
		{ID: "e1", Score: 0.9, Payload: map[string]any{"title": "Morning", "body": "long text", "mood": "calm"},
			Provenance: retriever.Provenance{Retriever: "entries", Backend: "chromem"}},
		{ID: "e2", Score: 0.4, Payload: map[string]any{"title": "Evening", "body": "more text"},
			Provenance: retriever.Provenance{Retriever: "entries", Backend: "chromem"}},
	}
}

func setup(t *testing.T, s *recordingStrategy) *retriever.Registry {
	t.Helper()
	r := retriever.NewRegistry()
	require.NoError(t, r.Register(s.name, s))
	return r
}

func TestTool_ExecuteTrimsToOutputSchema(t *testing.T) {
	s := &recordingStrategy{name: "entries", items: journalEntries()}
	retrievers := setup(t, s)

	searchTool, err := New(tool.Metadata{
		Name:        "journal_search",
		Version:     "1.0.0",
		OwnerDomain: "journaling",
		OutputSchema: map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":       "object",
				"properties": map[string]any{"title": map[string]any{"type": "string"}, "mood": map[string]any{}},
			},
		},
	}, retrievers, Config{Retriever: "entries"})
	require.NoError(t, err)

	tools := tool.NewRegistry()
	require.NoError(t, tools.Register(searchTool))

	items, err := tools.Execute(context.Background(), "journal_search", map[string]any{"query": "morning pages"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "e1", items[0].ID)
	assert.Equal(t, map[string]any{"title": "Morning", "mood": "calm"}, items[0].Content)
	assert.Equal(t, map[string]any{"title": "Evening"}, items[1].Content)
	assert.Equal(t, "chromem", items[0].Provenance.Backend)

	assert.Equal(t, "morning pages", s.query.Text)
	assert.Equal(t, DefaultTopK, s.topK)

	meta := searchTool.Metadata()
	assert.Equal(t, tool.BackendRetrieval, meta.BackendKind)
	assert.Contains(t, meta.InputSchema["required"], "query")
}

func TestTool_ArgumentsMapping(t *testing.T) {
	s := &recordingStrategy{name: "kg", items: journalEntries()}
	retrievers := setup(t, s)

	kg, err := New(tool.Metadata{Name: "related", Version: "1.0.0", BackendKind: tool.BackendHybrid, InputSchema: map[string]any{}},
		retrievers, Config{
			Retriever:  "kg",
			MaxTopK:    10,
			Filters:    map[string]any{"owner": "ana"},
			FilterArgs: []string{"mood"},
			Fields:     []string{"title"},
		})
	require.NoError(t, err)

	items, err := kg.Execute(context.Background(), map[string]any{
		"query":   "sleep",
		"top_k":   float64(40),
		"mood":    "calm",
		"seeds":   []any{"e1"},
		"filters": map[string]any{"owner": "bob", "year": 2024},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Morning"}, items[0].Content)

	assert.Equal(t, 10, s.topK)
	assert.Equal(t, retriever.Filters{"owner": "ana", "year": 2024, "mood": "calm"}, s.filters)
	assert.Equal(t, map[string]any{"seeds": []any{"e1"}}, s.query.Params)

	_, err = kg.Execute(context.Background(), map[string]any{"query": "x", "top_k": 0})
	assert.Error(t, err)
	_, err = kg.Execute(context.Background(), map[string]any{"query": "x", "top_k": 2.5})
	assert.Error(t, err)
}

func TestTool_BackendFailure(t *testing.T) {
	s := &recordingStrategy{name: "entries", err: errors.New("connection refused")}
	retrievers := setup(t, s)

	searchTool, err := New(tool.Metadata{Name: "s", Version: "1.0.0"}, retrievers, Config{Retriever: "entries"})
	require.NoError(t, err)

	tools := tool.NewRegistry()
	require.NoError(t, tools.Register(searchTool))

	_, err = tools.Execute(context.Background(), "s", map[string]any{"query": "q"})
	var bu *errs.BackendUnavailableError
	require.ErrorAs(t, err, &bu)
	assert.Equal(t, "entries", bu.Retriever)
	assert.Equal(t, errs.KindBackendUnavailable, errs.KindOf(err))
}

func TestNew_Validation(t *testing.T) {
	retrievers := setup(t, &recordingStrategy{name: "entries"})

	_, err := New(tool.Metadata{Name: "s", Version: "1"}, retrievers, Config{Retriever: "missing"})
	assert.ErrorIs(t, err, errs.ErrRetrieverNotFound)

	_, err = New(tool.Metadata{Name: "s", Version: "1"}, retrievers, Config{})
	assert.Error(t, err)

	_, err = New(tool.Metadata{Name: "s", Version: "1", BackendKind: tool.BackendTemplated}, retrievers, Config{Retriever: "entries"})
	assert.Error(t, err)

	_, err = New(tool.Metadata{Name: "s", Version: "1"}, nil, Config{Retriever: "entries"})
	assert.Error(t, err)

	_, err = New(tool.Metadata{Name: "s", Version: "1"}, retrievers, Config{Retriever: "entries", TopK: 20, MaxTopK: 10})
	assert.Error(t, err)
}

func TestOutputFields(t *testing.T) {
	assert.Nil(t, OutputFields(nil))
	assert.Nil(t, OutputFields(map[string]any{"type": "object"}))
	assert.Equal(t, []string{"a", "b"}, OutputFields(map[string]any{
		"properties": map[string]any{"b": map[string]any{}, "a": map[string]any{}},
	}))
}

func TestMapItem_CopiesProvenance(t *testing.T) {
	src := retriever.Item{ID: "x", Payload: map[string]any{"k": 1},
		Provenance: retriever.Provenance{Retriever: "h", Sources: []string{"a", "b"}}}

	out := MapItem(src, nil)
	out.Provenance.Sources[0] = "changed"
	out.Content["k"] = 2

	assert.Equal(t, "a", src.Provenance.Sources[0])
	assert.Equal(t, 1, src.Payload["k"])
}
