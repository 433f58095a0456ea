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

package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query string   `json:"query" jsonschema:"required,description=Search query"`
	TopK  int      `json:"top_k,omitempty" jsonschema:"minimum=1,maximum=50"`
	Tags  []string `json:"tags,omitempty"`
}

func TestSchemaFor(t *testing.T) {
	schema, err := SchemaFor[searchArgs]()
	require.NoError(t, err)

	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "$schema")
	assert.Equal(t, []any{"query"}, schema["required"])

	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "top_k")
	assert.Equal(t, "Search query", props["query"].(map[string]any)["description"])
}

func TestValidator(t *testing.T) {
	v, err := CompileSchema(MustSchemaFor[searchArgs]())
	require.NoError(t, err)

	assert.NoError(t, v.Validate(map[string]any{"query": "sleep", "top_k": 5}))
	assert.NoError(t, v.Validate(map[string]any{"query": "sleep", "tags": []string{"a"}}))
	assert.Error(t, v.Validate(map[string]any{}))
	assert.Error(t, v.Validate(map[string]any{"query": 3}))
	assert.Error(t, v.Validate(map[string]any{"query": "x", "top_k": 0}))
	assert.Error(t, v.Validate(nil))
}

func TestValidator_EmptySchemaAcceptsAnything(t *testing.T) {
	v, err := CompileSchema(nil)
	require.NoError(t, err)
	assert.NoError(t, v.Validate(map[string]any{"anything": []int{1}}))
	assert.NoError(t, v.Validate(nil))
}

func TestDecode(t *testing.T) {
	args, err := Decode[searchArgs](map[string]any{"query": "q", "top_k": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, searchArgs{Query: "q", TopK: 3}, args)

	_, err = Decode[searchArgs](map[string]any{"top_k": "three"})
	assert.Error(t, err)
}

func TestVersionOrdering(t *testing.T) {
	versions := []string{"nightly", "1.0.0", "v2.0.0", "1.10.0", "2.0.0-rc.1", "alpha", "1.2"}
	sortVersions(versions)
	assert.Equal(t, []string{"v2.0.0", "2.0.0-rc.1", "1.10.0", "1.2", "1.0.0", "alpha", "nightly"}, versions)

	assert.Equal(t, "v2.0.0", latestVersion(versions))
	assert.Empty(t, latestVersion([]string{"alpha", "nightly"}))

	c, ok := canonicalVersion("1")
	assert.True(t, ok)
	assert.Equal(t, "v1.0.0", c)
	_, ok = canonicalVersion("1.0.0.0")
	assert.False(t, ok)
}

func TestMetadataNormalization(t *testing.T) {
	m := Metadata{
		Name:        "s",
		Version:     "1.0.0",
		BackendKind: BackendRetrieval,
		Tags:        []string{"b", " a ", "b", ""},
	}.normalized()

	assert.Equal(t, []string{"a", "b"}, m.Tags)
	assert.Equal(t, EffectRetrieval, m.EffectBoundary)
	assert.True(t, m.HasTags([]string{"a", "b"}))
	assert.False(t, m.HasTags([]string{"a", "c"}))
	assert.True(t, m.HasTags(nil))

	k, err := ParseBackendKind(" Hybrid")
	require.NoError(t, err)
	assert.Equal(t, BackendHybrid, k)
	_, err = ParseEffectBoundary("network")
	assert.Error(t, err)
}
