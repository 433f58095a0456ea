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

package builder

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/kadirpekel/conductor/pkg/backend/graphstore"
	"github.com/kadirpekel/conductor/pkg/backend/sqlstore"
	"github.com/kadirpekel/conductor/pkg/backend/vectorstore"
	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/retriever"
)

// RetrieverFactory creates the strategy declared under name.
type RetrieverFactory func(ctx context.Context, name string, cfg *config.RetrieverConfig, deps *Deps) (retriever.Strategy, error)

// RetrieverFactories maps each retriever kind to its factory.
var RetrieverFactories = map[retriever.Kind]RetrieverFactory{
	retriever.KindVector:     newVectorRetriever,
	retriever.KindGraph:      newGraphRetriever,
	retriever.KindRelational: newRelationalRetriever,
	retriever.KindHybrid:     newHybridRetriever,
}

// VectorSpec is the config block of a vector retriever.
//
//	config:
//	  store: {type: chromem}
//	  embedder: default
//	  collection: entries
//	  documents:
//	    - {id: e1, text: "Walked by the river", metadata: {mood: calm}}
//
// Documents are embedded and loaded at build time when the store is the
// embedded chromem store.
type VectorSpec struct {
	Store     vectorstore.Config `yaml:"store,omitempty"`
	Embedder  string             `yaml:"embedder,omitempty"`
	Documents []SeedDocument     `yaml:"documents,omitempty"`

	retriever.VectorConfig `yaml:",squash"`
}

// SeedDocument is a document loaded into an embedded vector store.
type SeedDocument struct {
	ID       string         `yaml:"id"`
	Text     string         `yaml:"text"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// GraphSpec is the config block of a graph retriever.
type GraphSpec struct {
	Store graphstore.Config `yaml:"store,omitempty"`

	retriever.GraphConfig `yaml:",squash"`
}

// RelationalSpec is the config block of a relational retriever. Seed
// statements run once after the pool opens.
type RelationalSpec struct {
	Database sqlstore.Config `yaml:"database"`
	Seed     []string        `yaml:"seed,omitempty"`

	retriever.RelationalConfig `yaml:",squash"`
}

func strategyOptions(cfg *config.RetrieverConfig) []retriever.StrategyOption {
	if cfg.Retry == nil {
		return nil
	}
	return []retriever.StrategyOption{retriever.WithRetry(*cfg.Retry)}
}

func newVectorRetriever(ctx context.Context, name string, cfg *config.RetrieverConfig, deps *Deps) (retriever.Strategy, error) {
	var spec VectorSpec
	if err := config.Decode(cfg.Config, &spec); err != nil {
		return nil, err
	}
	if spec.Collection == "" {
		spec.Collection = name
	}

	embedder, err := deps.Embedder(spec.Embedder)
	if err != nil {
		return nil, err
	}
	client, err := vectorstore.New(spec.Store)
	if err != nil {
		return nil, err
	}

	if len(spec.Documents) > 0 {
		if err := seedVectors(ctx, client, embedder, spec); err != nil {
			return nil, errors.Join(err, client.Close())
		}
	}

	s, err := retriever.NewVectorStrategy(cfg.Metadata(name), client, embedder, spec.VectorConfig, strategyOptions(cfg)...)
	if err != nil {
		return nil, errors.Join(err, client.Close())
	}
	return s, nil
}

func seedVectors(ctx context.Context, client vectorstore.Client, embedder retriever.Embedder, spec VectorSpec) error {
	store, ok := client.(*vectorstore.Chromem)
	if !ok {
		return fmt.Errorf("documents can only be seeded into the %s store", vectorstore.TypeChromem)
	}
	docs := make([]vectorstore.Document, 0, len(spec.Documents))
	for _, d := range spec.Documents {
		vec, err := embedder.Embed(ctx, d.Text)
		if err != nil {
			return fmt.Errorf("embed document %s: %w", d.ID, err)
		}
		docs = append(docs, vectorstore.Document{ID: d.ID, Vector: vec, Content: d.Text, Metadata: d.Metadata})
	}
	return store.Upsert(ctx, spec.Collection, docs...)
}

func newGraphRetriever(ctx context.Context, name string, cfg *config.RetrieverConfig, _ *Deps) (retriever.Strategy, error) {
	var spec GraphSpec
	if err := config.Decode(cfg.Config, &spec); err != nil {
		return nil, err
	}
	store, err := graphstore.New(ctx, spec.Store)
	if err != nil {
		return nil, err
	}
	s, err := retriever.NewGraphStrategy(cfg.Metadata(name), store, spec.GraphConfig, strategyOptions(cfg)...)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return s, nil
}

func newRelationalRetriever(ctx context.Context, name string, cfg *config.RetrieverConfig, _ *Deps) (retriever.Strategy, error) {
	var spec RelationalSpec
	if err := config.Decode(cfg.Config, &spec); err != nil {
		return nil, err
	}
	spec.Database.SetDefaults()
	if spec.Dialect == "" {
		spec.Dialect = spec.Database.Dialect()
	}

	store, err := sqlstore.Open(ctx, spec.Database)
	if err != nil {
		return nil, err
	}
	for i, stmt := range spec.Seed {
		if err := store.Exec(ctx, stmt); err != nil {
			return nil, errors.Join(fmt.Errorf("seed[%d]: %w", i, err), store.Close())
		}
	}

	s, err := retriever.NewRelationalStrategy(cfg.Metadata(name), store, spec.RelationalConfig, strategyOptions(cfg)...)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return s, nil
}

func newHybridRetriever(_ context.Context, name string, cfg *config.RetrieverConfig, deps *Deps) (retriever.Strategy, error) {
	var cc retriever.CompositeConfig
	if err := config.Decode(cfg.Config, &cc); err != nil {
		return nil, err
	}
	var opts []retriever.CompositeOption
	if deps.Metrics != nil {
		opts = append(opts, retriever.WithCompositeMetrics(deps.Metrics))
	}
	return retriever.NewComposite(cfg.Metadata(name), cc, deps.Retrievers, opts...)
}

// members returns the retrievers a hybrid declaration depends on.
func members(cfg *config.RetrieverConfig) ([]string, error) {
	if kind, _ := retriever.ParseKind(cfg.Kind); kind != retriever.KindHybrid {
		return nil, nil
	}
	var cc retriever.CompositeConfig
	if err := config.Decode(cfg.Config, &cc); err != nil {
		return nil, err
	}
	return cc.Members, nil
}

// retrieverOrder sorts declarations so that every hybrid retriever comes
// after its members. Independent retrievers keep name order.
func retrieverOrder(decls map[string]*config.RetrieverConfig) ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(decls))
	order := make([]string, 0, len(decls))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("retriever cycle: %v", append(path, name))
		}
		state[name] = visiting

		deps, err := members(decls[name])
		if err != nil {
			return fmt.Errorf("retriever %q: %w", name, err)
		}
		for _, m := range deps {
			if _, ok := decls[m]; !ok {
				return fmt.Errorf("retriever %q: member %q is not declared", name, m)
			}
			if err := visit(m, append(path, name)); err != nil {
				return err
			}
		}

		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range slices.Sorted(maps.Keys(decls)) {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func buildRetrievers(ctx context.Context, decls map[string]*config.RetrieverConfig, deps *Deps) error {
	order, err := retrieverOrder(decls)
	if err != nil {
		return err
	}
	for _, name := range order {
		cfg := decls[name]
		kind, err := retriever.ParseKind(cfg.Kind)
		if err != nil {
			return fmt.Errorf("retriever %q: %w", name, err)
		}
		factory, ok := RetrieverFactories[kind]
		if !ok {
			return fmt.Errorf("retriever %q: no factory for kind %s", name, kind)
		}
		s, err := factory(ctx, name, cfg, deps)
		if err != nil {
			return fmt.Errorf("retriever %q: %w", name, err)
		}
		if err := deps.Retrievers.Register(name, s); err != nil {
			if c, ok := s.(interface{ Close() error }); ok {
				err = errors.Join(err, c.Close())
			}
			return err
		}
	}
	return nil
}
