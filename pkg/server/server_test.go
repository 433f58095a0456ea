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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/builder"
	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/errs"
	"github.com/kadirpekel/conductor/pkg/retriever"
	"github.com/kadirpekel/conductor/pkg/telemetry"
	"github.com/kadirpekel/conductor/pkg/tool"
	"github.com/kadirpekel/conductor/pkg/tool/functiontool"
)

const catalogue = `
retrievers:
  people:
    kind: graph
    config:
      store:
        nodes: [{id: ana, text: "Ana"}]
tools:
  - name: search
    version: 1.0.0
    kind: retrieval
    owner_domain: journaling
    tags: [search, people]
    config: {retriever: people}
  - name: search
    version: 2.0.0
    kind: retrieval
    owner_domain: journaling
    tags: [search]
    config: {retriever: people}
  - name: reflect
    version: 1.0.0
    kind: templated
    owner_domain: coaching
    config: {template: "Reflect on {topic}"}
`

type downStrategy struct{}

func (downStrategy) Metadata() retriever.Metadata {
	return retriever.Metadata{Name: "down", Kind: retriever.KindGraph}
}

func (downStrategy) Retrieve(context.Context, retriever.Query, int, retriever.Filters) ([]retriever.Item, error) {
	return nil, errors.New("down")
}

func (downStrategy) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, opts ...Option) (*Server, *builder.Runtime) {
	t.Helper()
	cfg, err := config.Parse([]byte(catalogue))
	require.NoError(t, err)
	rt, err := builder.Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return New(config.ServerConfig{}, StaticSource{Runtime: rt}, opts...), rt
}

func get(t *testing.T, h http.Handler, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestReadyz(t *testing.T) {
	s, rt := newTestServer(t)

	var report ReadyReport
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/readyz", &report))
	assert.True(t, report.Ready)
	require.Len(t, report.Retrievers, 1)
	assert.Equal(t, "people", report.Retrievers[0].Retriever)

	require.NoError(t, rt.Retrievers.Register("down", downStrategy{}))
	report = ReadyReport{}
	require.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/readyz", &report))
	assert.False(t, report.Ready)
	assert.Equal(t, retriever.HealthStatusUnhealthy, report.Retrievers[0].Status)
	assert.Contains(t, report.Retrievers[0].Message, "connection refused")
}

func TestReadyz_NoRuntime(t *testing.T) {
	s := New(config.ServerConfig{}, StaticSource{})
	var body errorBody
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/readyz", &body))
	assert.Equal(t, errNoRuntime.Error(), body.Error)
}

func TestListTools(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{name: "all latest", target: "/v1/tools", want: []string{"reflect@1.0.0", "search@2.0.0"}},
		{name: "by kind", target: "/v1/tools?kind=templated", want: []string{"reflect@1.0.0"}},
		{name: "by domain", target: "/v1/tools?domain=journaling", want: []string{"search@2.0.0"}},
		{name: "by version", target: "/v1/tools?version=1.0.0", want: []string{"reflect@1.0.0", "search@1.0.0"}},
		{name: "every tag", target: "/v1/tools?tag=search,people&version=1.0.0", want: []string{"search@1.0.0"}},
		{name: "repeated tag", target: "/v1/tools?tag=search&tag=people", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body struct {
				Tools []tool.Metadata `json:"tools"`
			}
			require.Equal(t, http.StatusOK, get(t, s.Handler(), tt.target, &body))
			keys := make([]string, 0, len(body.Tools))
			for _, m := range body.Tools {
				keys = append(keys, m.Key())
			}
			assert.Equal(t, tt.want, keys)
		})
	}

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/v1/tools?kind=agent", &body))
}

func TestGetTool(t *testing.T) {
	s, _ := newTestServer(t)

	var detail ToolDetail
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/v1/tools/search", &detail))
	assert.Equal(t, []string{"1.0.0", "2.0.0"}, detail.Versions)
	assert.Equal(t, "2.0.0", detail.Metadata.Version)
	assert.Equal(t, tool.EffectRetrieval, detail.Metadata.EffectBoundary)

	detail = ToolDetail{}
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/v1/tools/search?version=1.0.0", &detail))
	assert.Equal(t, []string{"people", "search"}, detail.Metadata.Tags)

	detail = ToolDetail{}
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/v1/tools/reflect", &detail))
	assert.Equal(t, []string{"render"}, detail.Subtools)

	var body errorBody
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/v1/tools/missing", &body))
	assert.Equal(t, errs.KindToolNotFound, body.Kind)

	body = errorBody{}
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/v1/tools/search?version=9.9.9", &body))
	assert.Equal(t, errs.KindVersionNotFound, body.Kind)
}

type echoArgs struct {
	Text string `json:"text"`
}

func TestGetTool_ServesNormalizedMetadata(t *testing.T) {
	s, rt := newTestServer(t)

	echo := builder.MustFunctionTool[echoArgs](functiontool.Config{
		Name:        "echo",
		Version:     "1.0.0",
		Description: "Echoes its input",
		Tags:        []string{"zeta", "alpha", "zeta"},
	}, func(_ context.Context, args echoArgs) ([]tool.Item, error) {
		return []tool.Item{{Content: map[string]any{"text": args.Text}}}, nil
	})
	require.NoError(t, rt.Tools.Register(echo))

	var detail ToolDetail
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/v1/tools/echo", &detail))
	assert.Equal(t, []string{"alpha", "zeta"}, detail.Metadata.Tags)
	assert.NotEmpty(t, detail.Metadata.EffectBoundary)

	var list struct {
		Tools []tool.Metadata `json:"tools"`
	}
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/v1/tools?tag=alpha", &list))
	require.Len(t, list.Tools, 1)
	assert.Equal(t, list.Tools[0], detail.Metadata)
}

func TestNoExecutionRoute(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tools/search", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body errorBody
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/v1/execute", &body))
}

func TestMetricsRoute(t *testing.T) {
	mgr := telemetry.NewManager(telemetry.Config{Metrics: telemetry.MetricsConfig{Enabled: true, Namespace: "servertest"}})
	require.NoError(t, mgr.Initialize(context.Background()))
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	s, _ := newTestServer(t, WithTelemetry(mgr), WithMetricsPath("/prom"))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prom", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	plain, _ := newTestServer(t)
	rec = httptest.NewRecorder()
	plain.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	rt, err := builder.Build(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close()

	s := New(config.ServerConfig{Address: "127.0.0.1:0"}, builder.NewReloader(rt, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
