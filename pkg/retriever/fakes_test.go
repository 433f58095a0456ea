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
	"sync"
	"sync/atomic"
	"time"
)

// staticStrategy returns fixed items or a fixed error.
type staticStrategy struct {
	name  string
	kind  Kind
	items []Item
	err   error
	delay time.Duration
	calls atomic.Int32

	closed atomic.Bool
}

func (s *staticStrategy) Metadata() Metadata {
	kind := s.kind
	if kind == "" {
		kind = KindVector
	}
	return Metadata{Name: s.name, Kind: kind, Capabilities: []string{CapabilitySemantic}}
}

func (s *staticStrategy) Retrieve(ctx context.Context, _ Query, topK int, _ Filters) ([]Item, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	items := append([]Item(nil), s.items...)
	if topK > 0 && len(items) > topK {
		items = items[:topK]
	}
	return items, nil
}

func (s *staticStrategy) Close() error {
	s.closed.Store(true)
	return nil
}

func scored(ids ...string) []Item {
	items := make([]Item, len(ids))
	for i, id := range ids {
		items[i] = Item{ID: id, Score: float64(len(ids) - i), Payload: map[string]any{"id": id}}
	}
	return items
}

// fakeClient records fetch calls for any native query type.
type fakeClient[Q any] struct {
	backend string
	records []Record
	errs    []error

	mu      sync.Mutex
	queries []Q
	filters []Filters
	closed  bool
	pingErr error
}

func (c *fakeClient[Q]) Fetch(_ context.Context, q Q, topK int, filters Filters) ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	c.filters = append(c.filters, filters)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return c.records, nil
}

func (c *fakeClient[Q]) Backend() string { return c.backend }

func (c *fakeClient[Q]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient[Q]) Ping(context.Context) error { return c.pingErr }

func (c *fakeClient[Q]) lastQuery() Q {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries[len(c.queries)-1]
}

func constEmbedder(vec ...float32) Embedder {
	return EmbedderFunc(func(context.Context, string) ([]float32, error) {
		return vec, nil
	})
}
