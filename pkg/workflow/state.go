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

package workflow

import (
	"maps"
	"slices"
)

// State is an immutable key-value snapshot passed between steps. Every
// mutation returns a new State; the receiver is never changed.
type State struct {
	values map[string]any
}

// NewState creates a state holding a copy of values.
func NewState(values map[string]any) State {
	return State{values: maps.Clone(values)}
}

// Get returns the value for key.
func (s State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// String returns the value for key when it is a string.
func (s State) String(key string) string {
	v, _ := s.values[key].(string)
	return v
}

// Has reports whether key is present.
func (s State) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// With returns a copy of s with key set to value.
func (s State) With(key string, value any) State {
	next := make(map[string]any, len(s.values)+1)
	maps.Copy(next, s.values)
	next[key] = value
	return State{values: next}
}

// Merge returns a copy of s with every entry of values applied.
func (s State) Merge(values map[string]any) State {
	next := make(map[string]any, len(s.values)+len(values))
	maps.Copy(next, s.values)
	maps.Copy(next, values)
	return State{values: next}
}

// Without returns a copy of s without key.
func (s State) Without(key string) State {
	if !s.Has(key) {
		return s
	}
	next := maps.Clone(s.values)
	delete(next, key)
	return State{values: next}
}

// Keys returns the keys in sorted order.
func (s State) Keys() []string {
	return slices.Sorted(maps.Keys(s.values))
}

// Len returns the number of entries.
func (s State) Len() int { return len(s.values) }

// Map returns a copy of the underlying values.
func (s State) Map() map[string]any {
	out := maps.Clone(s.values)
	if out == nil {
		out = map[string]any{}
	}
	return out
}
