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

package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kadirpekel/conductor/pkg/model"
	"github.com/kadirpekel/conductor/pkg/retriever"
)

func seedChromem(t *testing.T, store *Chromem, embedder model.Embedder) {
	t.Helper()
	ctx := context.Background()
	entries := []struct {
		id, text, mood string
	}{
		{"e1", "slept badly and woke up tired", "low"},
		{"e2", "a long walk by the river at sunset", "calm"},
		{"e3", "tired again, sleep was short", "low"},
	}
	for _, e := range entries {
		vec, err := embedder.Embed(ctx, e.text)
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, "journal", Document{
			ID:       e.id,
			Vector:   vec,
			Content:  e.text,
			Metadata: map[string]any{"mood": e.mood},
		}))
	}
}

func TestChromem_FetchThroughVectorStrategy(t *testing.T) {
	store, err := NewChromem(ChromemConfig{})
	require.NoError(t, err)
	embedder := model.NewHashingEmbedder(128)
	seedChromem(t, store, embedder)

	s, err := retriever.NewVectorStrategy(retriever.Metadata{Name: "journal"}, store, embedder,
		retriever.VectorConfig{Collection: "journal"})
	require.NoError(t, err)

	items, err := s.Retrieve(context.Background(), retriever.Query{Text: "tired sleep"}, 10, nil)
	require.NoError(t, err)
	require.Len(t, items, 3, "top_k above collection size is clamped")
	assert.Contains(t, []string{"e1", "e3"}, items[0].ID)
	assert.Equal(t, "chromem", items[0].Provenance.Backend)
	assert.NotEmpty(t, items[0].Payload[ContentKey])

	items, err = s.Retrieve(context.Background(), retriever.Query{Text: "tired sleep"}, 5, retriever.Filters{"mood": "calm"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "e2", items[0].ID)
	assert.Equal(t, "calm", items[0].Payload["mood"])

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
}

func TestChromem_EmptyCollection(t *testing.T) {
	store, err := NewChromem(ChromemConfig{})
	require.NoError(t, err)

	records, err := store.Fetch(context.Background(), retriever.VectorQuery{Collection: "empty", Vector: []float32{1, 0}}, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestChromem_UpsertValidation(t *testing.T) {
	store, err := NewChromem(ChromemConfig{})
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, store.Upsert(ctx, "c", Document{Vector: []float32{1}}))
	assert.Error(t, store.Upsert(ctx, "c", Document{ID: "x"}))
}

func TestChromem_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors", "db")
	store, err := NewChromem(ChromemConfig{PersistPath: path})
	require.NoError(t, err)
	seedChromem(t, store, model.NewHashingEmbedder(32))
	require.NoError(t, store.Close())

	reopened, err := NewChromem(ChromemConfig{PersistPath: path})
	require.NoError(t, err)
	n, err := reopened.Count("journal")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default is chromem", cfg: Config{}},
		{name: "qdrant defaults host", cfg: Config{Type: "QDRANT"}},
		{name: "pinecone needs key", cfg: Config{Type: TypePinecone}, wantErr: true},
		{name: "pinecone with key", cfg: Config{Type: TypePinecone, Pinecone: &PineconeConfig{APIKey: "k"}}},
		{name: "unknown", cfg: Config{Type: "faiss"}, wantErr: true},
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

	c, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "chromem", c.Backend())
}

func TestQdrantFilterAndPayload(t *testing.T) {
	f, err := qdrantFilter(retriever.Filters{"mood": "low"})
	require.NoError(t, err)
	require.Len(t, f.Must, 1)
	assert.Equal(t, "mood", f.Must[0].GetField().GetKey())

	_, err = qdrantFilter(retriever.Filters{"x": 1.5})
	assert.Error(t, err)
	_, err = qdrantFilter(retriever.Filters{"x": []int{1}})
	assert.Error(t, err)

	records := qdrantRecords([]*qdrant.ScoredPoint{{
		Id:    qdrant.NewIDNum(7),
		Score: 0.5,
		Payload: map[string]*qdrant.Value{
			"title": qdrant.NewValueString("notes"),
			"tags":  qdrant.NewValueList(&qdrant.ListValue{Values: []*qdrant.Value{qdrant.NewValueString("a")}}),
		},
	}})
	require.Len(t, records, 1)
	assert.Equal(t, "7", records[0].ID)
	assert.Equal(t, "notes", records[0].Payload["title"])
	assert.Equal(t, []any{"a"}, records[0].Payload["tags"])
}

func TestQdrantClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "unavailable", err: status.Error(codes.Unavailable, "connection lost"), retryable: true},
		{name: "exhausted", err: status.Error(codes.ResourceExhausted, "slow down"), retryable: true},
		{name: "deadline", err: status.Error(codes.DeadlineExceeded, "late"), retryable: true},
		{name: "invalid argument", err: status.Error(codes.InvalidArgument, "bad vector"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			r := retriever.NewRetryer(retriever.RetryConfig{MaxAttempts: 2, InitialDelay: 1})
			_, err := retriever.Do(context.Background(), r, "search", func(context.Context) (int, error) {
				calls++
				return 0, classify(tt.err)
			})
			require.Error(t, err)
			assert.Equal(t, status.Code(tt.err), status.Code(classify(tt.err)))
			if tt.retryable {
				assert.Equal(t, 2, calls)
			} else {
				assert.Equal(t, 1, calls)
			}
		})
	}
}

func TestPineconeFilter(t *testing.T) {
	f, err := pineconeFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = pineconeFilter(retriever.Filters{"mood": "low", "tags": []string{"a", "b"}})
	require.NoError(t, err)
	m := f.AsMap()
	assert.Equal(t, map[string]any{"$eq": "low"}, m["mood"])
	assert.Equal(t, map[string]any{"$in": []any{"a", "b"}}, m["tags"])
}
