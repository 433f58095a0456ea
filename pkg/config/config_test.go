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

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/config/provider"
	"github.com/kadirpekel/conductor/pkg/model"
	"github.com/kadirpekel/conductor/pkg/retriever"
	"github.com/kadirpekel/conductor/pkg/tool"
)

const sampleConfig = `
logger:
  level: debug
  format: json
server:
  address: ":8088"
  read_timeout: 3s
execution:
  default_timeout: 45s
embedders:
  small: {type: hashing, dimension: 64}
retrievers:
  journal:
    kind: vector
    capabilities: [semantic]
    retry: {max_attempts: 5, initial_delay: 50ms}
    config:
      backend: chromem
      collection: ${JOURNAL_COLLECTION:-entries}
      embedder: small
tools:
  - name: journal_search
    version: 1.0.0
    kind: retrieval
    owner_domain: journaling
    tags: [search, journal]
    timeout: 2s
    config:
      retriever: journal
      top_k: "8"
  - name: reflect
    version: 2.0.0
    kind: templated
    config:
      engine: go
      template: "{{ range $$i, $$e := .entries }}{{ $$e }}{{ end }}"
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, ":8088", cfg.Server.Address)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 45*time.Second, cfg.Execution.DefaultTimeout)

	require.Contains(t, cfg.Embedders, "small")
	assert.Equal(t, 64, cfg.Embedders["small"].Dimension)
	require.Contains(t, cfg.LLMs, DefaultName, "a default llm is created")
	assert.Equal(t, model.TypeEcho, cfg.LLMs[DefaultName].Type)

	r := cfg.Retrievers["journal"]
	require.NotNil(t, r)
	assert.Equal(t, "entries", r.Config["collection"])
	require.NotNil(t, r.Retry)
	assert.Equal(t, 5, r.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, r.Retry.InitialDelay)

	meta := r.Metadata("journal")
	assert.Equal(t, retriever.KindVector, meta.Kind)
	assert.Equal(t, []string{"semantic"}, meta.Capabilities)

	require.Len(t, cfg.Tools, 2)
	search := cfg.Tools[0]
	assert.Equal(t, 2*time.Second, search.Timeout)
	tm := search.Metadata()
	assert.Equal(t, tool.BackendRetrieval, tm.BackendKind)
	assert.Equal(t, "journaling", tm.OwnerDomain)
	assert.Equal(t, []string{"search", "journal"}, tm.Tags)

	assert.Equal(t, "{{ range $i, $e := .entries }}{{ $e }}{{ end }}", cfg.Tools[1].Config["template"])
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv("JOURNAL_COLLECTION", "archive")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "archive", cfg.Retrievers["journal"].Config["collection"])
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"tools": [{"name": "t", "version": "1.0.0", "kind": "workflow"}]}`))
	require.NoError(t, err)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, "t@1.0.0", cfg.Tools[0].Key())
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "simple", cfg.Logger.Format)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, DefaultExecutionTimeout, cfg.Execution.DefaultTimeout)
	assert.Contains(t, cfg.Embedders, DefaultName)
	assert.Contains(t, cfg.LLMs, DefaultName)
	assert.True(t, cfg.Observability.ShouldLogExecutions())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "syntax", yaml: "tools: [", want: "parse"},
		{name: "log level", yaml: "logger: {level: loud}", want: "invalid log level"},
		{name: "log format", yaml: "logger: {format: xml}", want: "invalid log format"},
		{name: "retriever kind", yaml: "retrievers: {r: {kind: fulltext}}", want: "retriever \"r\""},
		{name: "empty retriever", yaml: "retrievers: {r: }", want: "configuration is empty"},
		{name: "retry", yaml: "retrievers: {r: {kind: graph, retry: {jitter: 4}}}", want: "retry"},
		{name: "tool name", yaml: "tools: [{version: 1.0.0}]", want: "name is required"},
		{name: "tool version", yaml: "tools: [{name: a}]", want: "version is required"},
		{name: "tool kind", yaml: "tools: [{name: a, version: '1', kind: agent}]", want: "unknown backend kind"},
		{name: "effect", yaml: "tools: [{name: a, version: '1', effect_boundary: cosmic}]", want: "unknown effect boundary"},
		{name: "timeout", yaml: "tools: [{name: a, version: '1', timeout: -1s}]", want: "timeout"},
		{
			name: "duplicate",
			yaml: "tools: [{name: a, version: 1.0.0}, {name: a, version: 1.0.0}]",
			want: "duplicate tool a@1.0.0",
		},
		{name: "llm type", yaml: "llms: {x: {type: gpt}}", want: "llm \"x\""},
		{name: "tracing", yaml: "observability: {tracing: {enabled: true, exporter: zipkin}}", want: "observability"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestToolConfig_DefaultsToWorkflow(t *testing.T) {
	cfg, err := Parse([]byte("tools: [{name: a, version: 1.0.0}]"))
	require.NoError(t, err)
	assert.Equal(t, tool.BackendWorkflow, cfg.Tools[0].Metadata().BackendKind)
}

func TestExpandEnvString(t *testing.T) {
	t.Setenv("CONDUCTOR_TEST_HOST", "db.internal")
	t.Setenv("CONDUCTOR_TEST_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{in: "plain", want: "plain"},
		{in: "${CONDUCTOR_TEST_HOST}:5432", want: "db.internal:5432"},
		{in: "$CONDUCTOR_TEST_HOST", want: "db.internal"},
		{in: "${CONDUCTOR_TEST_EMPTY:-fallback}", want: "fallback"},
		{in: "${CONDUCTOR_TEST_UNSET:-a:-b}", want: "a:-b"},
		{in: "${CONDUCTOR_TEST_UNSET}", want: ""},
		{in: "cost: $$5", want: "cost: $5"},
		{in: "$$CONDUCTOR_TEST_HOST", want: "$CONDUCTOR_TEST_HOST"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnvString(tt.in))
		})
	}
}

func TestDecode(t *testing.T) {
	var out struct {
		Timeout time.Duration `yaml:"timeout"`
		Columns []string      `yaml:"columns"`
		TopK    int           `yaml:"top_k"`
		Strict  bool          `yaml:"strict"`
	}
	err := Decode(map[string]any{
		"timeout": "150ms",
		"columns": "title,body",
		"top_k":   "7",
		"strict":  "true",
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, 150*time.Millisecond, out.Timeout)
	assert.Equal(t, []string{"title", "body"}, out.Columns)
	assert.Equal(t, 7, out.TopK)
	assert.True(t, out.Strict)

	assert.Error(t, Decode(map[string]any{"top_k": "many"}, &out))
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "conductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	cfg, loader, err := Open(context.Background(), provider.ProviderConfig{Type: provider.TypeFile, Path: path})
	require.NoError(t, err)
	defer loader.Close()

	assert.Len(t, cfg.Tools, 2)
	assert.Equal(t, provider.TypeFile, loader.Provider().Type())

	_, _, err = Open(context.Background(), provider.ProviderConfig{Path: filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}

func TestParse_JSONAndEmptyDocuments(t *testing.T) {
	cfg, err := Parse([]byte(`{"tools": [{"name": "a", "version": "1.0.0"}]}`))
	require.NoError(t, err)
	assert.Len(t, cfg.Tools, 1)

	cfg, err = Parse([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Tools)

	_, err = Parse([]byte("- just\n- a list"))
	assert.Error(t, err)
}

// signalProvider serves a fixed document and signals on demand.
type signalProvider struct {
	mu      sync.Mutex
	data    []byte
	changes chan struct{}
}

func (p *signalProvider) Type() provider.Type { return "memory" }

func (p *signalProvider) Load(context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data, nil
}

func (p *signalProvider) Watch(context.Context) (<-chan struct{}, error) { return p.changes, nil }

func (p *signalProvider) Close() error { return nil }

func (p *signalProvider) set(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = []byte(data)
}

func TestLoader_SkipsUnchangedAndInvalidReloads(t *testing.T) {
	p := &signalProvider{data: []byte("tools: [{name: a, version: 1.0.0}]"), changes: make(chan struct{})}
	reloaded := make(chan *Config, 4)
	loader := NewLoader(p, WithOnChange(func(c *Config) { reloaded <- c }))

	_, err := loader.Load(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loader.Watch(ctx) }()

	// Same bytes: no callback.
	p.changes <- struct{}{}
	// Invalid document: rejected, no callback.
	p.set("tools: [{name: a}]")
	p.changes <- struct{}{}
	// New valid document: one callback.
	p.set("tools: [{name: a, version: 1.0.0}, {name: b, version: 1.0.0}]")
	p.changes <- struct{}{}

	select {
	case cfg := <-reloaded:
		assert.Len(t, cfg.Tools, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("reload not delivered")
	}
	assert.Empty(t, reloaded)
}

func TestLoader_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "tools: [{name: a, version: 1.0.0}]")

	p, err := provider.NewFileProvider(path)
	require.NoError(t, err)

	reloaded := make(chan *Config, 4)
	loader := NewLoader(p, WithOnChange(func(c *Config) { reloaded <- c }))
	defer loader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loader.Watch(ctx) }()

	// The watcher starts asynchronously; rewrite until a reload lands.
	var cfg *Config
	require.Eventually(t, func() bool {
		writeConfig(t, dir, "tools: [{name: a, version: 1.0.0}, {name: a, version: 1.1.0}]")
		select {
		case cfg = <-reloaded:
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
	assert.Len(t, cfg.Tools, 2)

	cancel()
	select {
	case err := <-done:
		assert.True(t, err == nil || err == context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("CONDUCTOR_DOTENV_A=from-env\nCONDUCTOR_DOTENV_B=from-env\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"),
		[]byte("CONDUCTOR_DOTENV_A=from-local\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("CONDUCTOR_DOTENV_A")
		os.Unsetenv("CONDUCTOR_DOTENV_B")
	})

	require.NoError(t, LoadEnvFiles(dir))
	assert.Equal(t, "from-local", os.Getenv("CONDUCTOR_DOTENV_A"))
	assert.Equal(t, "from-env", os.Getenv("CONDUCTOR_DOTENV_B"))

	assert.NoError(t, LoadEnvFiles(t.TempDir()), "missing files are skipped")
}

func TestJSONSchema(t *testing.T) {
	s := JSONSchema()
	require.NotNil(t, s.Properties)

	for _, key := range []string{"logger", "server", "execution", "retrievers", "tools"} {
		_, ok := s.Properties.Get(key)
		assert.True(t, ok, key)
	}
}
