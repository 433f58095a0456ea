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
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kadirpekel/conductor/pkg/retriever"
)

// PineconeConfig configures a Pinecone project.
type PineconeConfig struct {
	APIKey string `yaml:"api_key" json:"api_key"`

	// Host overrides the control plane API host.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// IndexHost pins the data plane host and skips index discovery.
	IndexHost string `yaml:"index_host,omitempty" json:"index_host,omitempty"`

	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// Pinecone is a vector Backend Client for Pinecone. The query's collection
// names the index; index connections are opened once and reused.
type Pinecone struct {
	client *pinecone.Client
	config PineconeConfig

	mu    sync.Mutex
	conns map[string]*pinecone.IndexConnection
}

// NewPinecone creates a Pinecone client.
func NewPinecone(cfg PineconeConfig) (*Pinecone, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone: api key is required")
	}

	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("pinecone: failed to create client: %w", err)
	}

	return &Pinecone{
		client: client,
		config: cfg,
		conns:  make(map[string]*pinecone.IndexConnection),
	}, nil
}

func (p *Pinecone) index(ctx context.Context, name string) (*pinecone.IndexConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[name]; ok {
		return conn, nil
	}

	host := p.config.IndexHost
	if host == "" {
		idx, err := p.client.DescribeIndex(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("pinecone: describe index %s: %w", name, err)
		}
		host = idx.Host
	}

	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: p.config.Namespace})
	if err != nil {
		return nil, fmt.Errorf("pinecone: connect to index %s: %w", name, err)
	}
	p.conns[name] = conn
	return conn, nil
}

// Fetch queries an index by vector. Filters become $eq conditions.
func (p *Pinecone) Fetch(ctx context.Context, q retriever.VectorQuery, topK int, filters retriever.Filters) ([]retriever.Record, error) {
	conn, err := p.index(ctx, q.Collection)
	if err != nil {
		return nil, err
	}

	filter, err := pineconeFilter(filters)
	if err != nil {
		return nil, err
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          q.Vector,
		TopK:            uint32(topK),
		MetadataFilter:  filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone: query %s: %w", q.Collection, err)
	}

	records := make([]retriever.Record, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		var payload map[string]any
		if m.Vector.Metadata != nil {
			payload = m.Vector.Metadata.AsMap()
		}
		records = append(records, retriever.Record{
			ID:      m.Vector.Id,
			Score:   float64(m.Score),
			Payload: payload,
		})
	}
	return records, nil
}

func (p *Pinecone) Backend() string { return string(TypePinecone) }

func (p *Pinecone) Ping(ctx context.Context) error {
	if _, err := p.client.ListIndexes(ctx); err != nil {
		return fmt.Errorf("pinecone: list indexes: %w", err)
	}
	return nil
}

func (p *Pinecone) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for name, conn := range p.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pinecone: close index %s: %w", name, err)
		}
	}
	p.conns = make(map[string]*pinecone.IndexConnection)
	return firstErr
}

func pineconeFilter(filters retriever.Filters) (*pinecone.MetadataFilter, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	clauses := make(map[string]any, len(filters))
	for k, v := range filters {
		if list, ok := v.([]string); ok {
			values := make([]any, len(list))
			for i, s := range list {
				values[i] = s
			}
			clauses[k] = map[string]any{"$in": values}
			continue
		}
		clauses[k] = map[string]any{"$eq": v}
	}
	filter, err := structpb.NewStruct(clauses)
	if err != nil {
		return nil, fmt.Errorf("pinecone: convert filter: %w", err)
	}
	return filter, nil
}
