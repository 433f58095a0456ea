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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/kadirpekel/conductor/pkg/retriever"
)

// ContentKey is the payload key holding a document's content.
const ContentKey = "content"

// ChromemConfig configures the embedded chromem store.
type ChromemConfig struct {
	// PersistPath enables file persistence. Empty keeps vectors in memory.
	PersistPath string `yaml:"persist_path,omitempty" json:"persist_path,omitempty"`

	// Compress enables gzip compression for persisted files.
	Compress bool `yaml:"compress,omitempty" json:"compress,omitempty"`
}

// Document is a vector with its content and metadata.
type Document struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
}

// Chromem is an embedded vector store backed by chromem-go. It needs no
// external service and is the default for single-process deployments.
//
// Embeddings are always computed by the strategy's embedder, so collections
// are created with an identity embedding function that refuses raw text.
type Chromem struct {
	db          *chromem.DB
	persistPath string

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewChromem creates an embedded vector store.
func NewChromem(cfg ChromemConfig) (*Chromem, error) {
	var db *chromem.DB
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.PersistPath), 0o755); err != nil {
			return nil, fmt.Errorf("chromem: failed to create persist directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("chromem: failed to open %s: %w", cfg.PersistPath, err)
		}
		slog.Debug("Opened persistent vector store", "path", cfg.PersistPath)
	} else {
		db = chromem.NewDB()
	}

	return &Chromem{
		db:          db,
		persistPath: cfg.PersistPath,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func identityEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("chromem: documents must carry precomputed vectors")
}

func (c *Chromem) collection(name string) (*chromem.Collection, error) {
	c.mu.RLock()
	col, ok := c.collections[name]
	c.mu.RUnlock()
	if ok {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[name]; ok {
		return col, nil
	}
	col, err := c.db.GetOrCreateCollection(name, nil, identityEmbedding)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection %s: %w", name, err)
	}
	c.collections[name] = col
	return col, nil
}

// Upsert adds or replaces documents in a collection.
func (c *Chromem) Upsert(ctx context.Context, collection string, docs ...Document) error {
	col, err := c.collection(collection)
	if err != nil {
		return err
	}

	batch := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("chromem: document id is required")
		}
		if len(d.Vector) == 0 {
			return fmt.Errorf("chromem: document %s has no vector", d.ID)
		}
		batch = append(batch, chromem.Document{
			ID:        d.ID,
			Embedding: d.Vector,
			Content:   d.Content,
			Metadata:  stringMetadata(d.Metadata),
		})
	}
	if err := col.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem: upsert into %s: %w", collection, err)
	}
	return nil
}

// Fetch runs a similarity search. Filters are exact matches on metadata.
func (c *Chromem) Fetch(ctx context.Context, q retriever.VectorQuery, topK int, filters retriever.Filters) ([]retriever.Record, error) {
	col, err := c.collection(q.Collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects result counts above the collection size.
	n := min(topK, col.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, q.Vector, n, stringFilters(filters), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query %s: %w", q.Collection, err)
	}

	records := make([]retriever.Record, 0, len(results))
	for _, r := range results {
		payload := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		if r.Content != "" {
			payload[ContentKey] = r.Content
		}
		records = append(records, retriever.Record{
			ID:      r.ID,
			Score:   float64(r.Similarity),
			Payload: payload,
		})
	}
	return records, nil
}

func (c *Chromem) Backend() string { return string(TypeChromem) }

// Ping always succeeds for the embedded store.
func (c *Chromem) Ping(ctx context.Context) error { return ctx.Err() }

// Close releases cached collections. Persistent databases write through on
// every change, so there is nothing to flush.
func (c *Chromem) Close() error {
	c.mu.Lock()
	c.collections = make(map[string]*chromem.Collection)
	c.mu.Unlock()
	return nil
}

// PersistPath returns the configured persistence path, if any.
func (c *Chromem) PersistPath() string { return c.persistPath }

// Count returns the number of documents in a collection.
func (c *Chromem) Count(collection string) (int, error) {
	col, err := c.collection(collection)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

func stringMetadata(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}
