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

// Package registry provides a generic named registry with lock-free reads.
//
// Writes are serialized by a mutex and publish a fresh immutable map through
// an atomic pointer swap. Readers load the current map without locking, which
// suits the bootstrap-then-read-mostly lifecycle of tool and retriever
// registries.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kadirpekel/conductor/pkg/errs"
)

// Registry is a copy-on-write map from name to T.
type Registry[T any] struct {
	label string

	mu    sync.Mutex
	items atomic.Pointer[map[string]T]
}

// New creates an empty registry. label names the registry in errors,
// e.g. "tool" or "retriever".
func New[T any](label string) *Registry[T] {
	r := &Registry[T]{label: label}
	empty := make(map[string]T)
	r.items.Store(&empty)
	return r
}

func (r *Registry[T]) snapshot() map[string]T {
	return *r.items.Load()
}

// Register adds item under name. It fails when name is empty or already taken.
func (r *Registry[T]) Register(name string, item T) error {
	return r.Upsert(name, func(_ T, exists bool) (T, error) {
		if exists {
			var zero T
			return zero, &errs.DuplicateRegistrationError{Registry: r.label, Key: name}
		}
		return item, nil
	})
}

// Upsert atomically replaces the value under name with the result of fn.
// fn receives the current value and whether it exists; returning an error
// leaves the registry unchanged.
func (r *Registry[T]) Upsert(name string, fn func(current T, exists bool) (T, error)) error {
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", r.label)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snapshot()
	current, exists := old[name]
	next, err := fn(current, exists)
	if err != nil {
		return err
	}

	updated := make(map[string]T, len(old)+1)
	for k, v := range old {
		updated[k] = v
	}
	updated[name] = next
	r.items.Store(&updated)
	return nil
}

// Get returns the item registered under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	item, ok := r.snapshot()[name]
	return item, ok
}

// Names returns registered names in ascending order.
func (r *Registry[T]) Names() []string {
	items := r.snapshot()
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns registered items ordered by name.
func (r *Registry[T]) List() []T {
	items := r.snapshot()
	names := r.Names()
	out := make([]T, 0, len(names))
	for _, name := range names {
		if item, ok := items[name]; ok {
			out = append(out, item)
		}
	}
	return out
}

// Count returns the number of registered items.
func (r *Registry[T]) Count() int {
	return len(r.snapshot())
}
