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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/conductor/pkg/builder"
	"github.com/kadirpekel/conductor/pkg/errs"
	"github.com/kadirpekel/conductor/pkg/retriever"
	"github.com/kadirpekel/conductor/pkg/tool"
)

var errNoRuntime = errors.New("no runtime loaded")

// ToolDetail is the body of GET /v1/tools/{name}.
type ToolDetail struct {
	Name     string        `json:"name"`
	Versions []string      `json:"versions"`
	Metadata tool.Metadata `json:"metadata"`
	Subtools []string      `json:"subtools"`
}

// ReadyReport is the body of GET /readyz.
type ReadyReport struct {
	Ready      bool                    `json:"ready"`
	Retrievers []retriever.HealthCheck `json:"retrievers"`
}

func (s *Server) runtime(w http.ResponseWriter) (*builder.Runtime, bool) {
	var rt *builder.Runtime
	if s.source != nil {
		rt = s.source.Current()
	}
	if rt == nil {
		writeError(w, http.StatusServiceUnavailable, errNoRuntime)
		return nil, false
	}
	return rt, true
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.runtime(w)
	if !ok {
		return
	}

	report := ReadyReport{Ready: true, Retrievers: rt.Retrievers.Health(r.Context(), s.cfg.HealthTimeout)}
	for _, h := range report.Retrievers {
		if !h.IsHealthy() {
			report.Ready = false
		}
	}
	if report.Retrievers == nil {
		report.Retrievers = []retriever.HealthCheck{}
	}

	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// handleListTools accepts kind, domain, version and tag (repeatable or
// comma separated) query parameters.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.runtime(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := tool.ListFilter{
		OwnerDomain: q.Get("domain"),
		Version:     q.Get("version"),
	}
	if k := q.Get("kind"); k != "" {
		kind, err := tool.ParseBackendKind(k)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.BackendKind = kind
	}
	for _, v := range q["tag"] {
		for tag := range strings.SplitSeq(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}

	tools := rt.Tools.List(filter)
	if tools == nil {
		tools = []tool.Metadata{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

// handleGetTool describes one tool. The version query parameter selects a
// version; without it the latest is described.
func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.runtime(w)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	version := r.URL.Query().Get("version")

	if _, err := rt.Tools.Resolve(name, version); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	meta, ok := rt.Tools.GetMetadata(name, version)
	if !ok {
		writeError(w, http.StatusNotFound, &errs.ToolNotFoundError{Name: name})
		return
	}
	subtools, err := rt.Tools.ListSubtools(meta.Name, meta.Version)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if subtools == nil {
		subtools = []string{}
	}

	writeJSON(w, http.StatusOK, ToolDetail{
		Name:     meta.Name,
		Versions: rt.Tools.Versions(meta.Name),
		Metadata: meta,
		Subtools: subtools,
	})
}

// statusFor maps a registry error onto an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindToolNotFound, errs.KindVersionNotFound, errs.KindSubtoolNotFound, errs.KindRetrieverNotFound:
		return http.StatusNotFound
	case errs.KindSchemaValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string    `json:"error"`
	Kind  errs.Kind `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: err.Error()}
	var k errs.Kinded
	if errors.As(err, &k) {
		body.Kind = k.Kind()
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
