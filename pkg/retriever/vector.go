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
	"fmt"
	"log/slog"
)

// StrategyOption configures a concrete strategy.
type StrategyOption func(*strategyOptions)

type strategyOptions struct {
	retryer *Retryer
}

// WithRetry enables per-strategy retries of backend fetches.
func WithRetry(cfg RetryConfig) StrategyOption {
	return func(o *strategyOptions) {
		o.retryer = NewRetryer(cfg)
	}
}

func applyStrategyOptions(opts []StrategyOption) strategyOptions {
	o := strategyOptions{retryer: NoRetry()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// VectorConfig configures a VectorStrategy.
type VectorConfig struct {
	// Collection is the backend collection or index name.
	Collection string `yaml:"collection"`

	// MinScore drops results scoring below this similarity.
	MinScore float64 `yaml:"min_score,omitempty"`
}

// VectorStrategy embeds the query text and runs a similarity search.
type VectorStrategy struct {
	meta     Metadata
	client   VectorClient
	embedder Embedder
	config   VectorConfig
	retryer  *Retryer
}

// NewVectorStrategy takes ownership of client; Close releases it.
func NewVectorStrategy(meta Metadata, client VectorClient, embedder Embedder, cfg VectorConfig, opts ...StrategyOption) (*VectorStrategy, error) {
	if client == nil {
		return nil, fmt.Errorf("vector retriever %q: client is required", meta.Name)
	}
	if embedder == nil {
		return nil, fmt.Errorf("vector retriever %q: embedder is required", meta.Name)
	}

	meta.Kind = KindVector
	if len(meta.Capabilities) == 0 {
		meta.Capabilities = []string{CapabilitySemantic, CapabilityFilterable}
	}

	o := applyStrategyOptions(opts)

	slog.Debug("Vector retriever initialized",
		"retriever", meta.Name,
		"backend", client.Backend(),
		"collection", cfg.Collection)

	return &VectorStrategy{
		meta:     meta,
		client:   client,
		embedder: embedder,
		config:   cfg,
		retryer:  o.retryer,
	}, nil
}

func (s *VectorStrategy) Metadata() Metadata { return s.meta }

func (s *VectorStrategy) Retrieve(ctx context.Context, query Query, topK int, filters Filters) ([]Item, error) {
	text := normalizeQuery(query.Text)
	if text == "" {
		return []Item{}, nil
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	native := VectorQuery{Collection: s.config.Collection, Vector: vector}
	records, err := Do(ctx, s.retryer, s.meta.Name+".fetch", func(ctx context.Context) ([]Record, error) {
		return s.client.Fetch(ctx, native, topK, filters)
	})
	if err != nil {
		return nil, err
	}

	items := toItems(records, s.meta.Name, s.client.Backend())
	if s.config.MinScore > 0 {
		kept := items[:0]
		for _, it := range items {
			if it.Score >= s.config.MinScore {
				kept = append(kept, it)
			}
		}
		items = kept
	}
	return rank(items, topK), nil
}

func (s *VectorStrategy) Ping(ctx context.Context) error {
	return pingClient(ctx, s.client)
}

func (s *VectorStrategy) Close() error {
	return s.client.Close()
}

// pingClient pings clients that support it and treats others as reachable.
func pingClient(ctx context.Context, client any) error {
	if p, ok := client.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

var _ Strategy = (*VectorStrategy)(nil)
