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

package model

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashingEmbedder(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Morning pages about sleep")
	require.NoError(t, err)
	require.Len(t, a, 64)

	again, err := e.Embed(ctx, "morning PAGES about sleep!")
	require.NoError(t, err)
	assert.Equal(t, a, again, "embedding is deterministic and case-insensitive")

	assert.InDelta(t, 1.0, math.Sqrt(dot(a, a)), 1e-5)

	related, err := e.Embed(ctx, "sleep pages")
	require.NoError(t, err)
	unrelated, err := e.Embed(ctx, "quarterly tax invoice")
	require.NoError(t, err)
	assert.Greater(t, dot(a, related), dot(a, unrelated))

	empty, err := e.Embed(ctx, "   ")
	require.NoError(t, err)
	assert.Zero(t, dot(empty, empty))

	symbols, err := e.Embed(ctx, "!!")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dot(symbols, symbols), 1e-5)
}

func TestHashingEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashingEmbedder(0).Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEchoLLM(t *testing.T) {
	llm := &EchoLLM{}
	assert.Equal(t, "echo", llm.Name())

	resp, err := llm.Generate(context.Background(), &Request{System: "Be brief.", Prompt: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "Be brief.\n\nhello there", resp.Text)
	assert.Equal(t, 8, resp.Usage.TotalTokens())
}

func TestConfigs(t *testing.T) {
	var ec EmbedderConfig
	ec.SetDefaults()
	require.NoError(t, ec.Validate())
	assert.Equal(t, DefaultDimension, ec.Dimension)

	emb, err := NewEmbedder(EmbedderConfig{Dimension: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, emb.(*HashingEmbedder).Dimension())

	_, err = NewEmbedder(EmbedderConfig{Type: "openai"})
	assert.Error(t, err)

	llm, err := NewLLM("dev", LLMConfig{})
	require.NoError(t, err)
	assert.Equal(t, "dev", llm.Name())

	_, err = NewLLM("x", LLMConfig{MaxPromptTokens: -1})
	assert.Error(t, err)
}

func TestTokenCounterFunc(t *testing.T) {
	var c TokenCounter = TokenCounterFunc(func(s string) int { return len(s) })
	assert.Equal(t, 3, c.Count("abc"))
}
