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

// Package conductor is a versioned tool registry with hybrid retrieval
// orchestration.
//
// Tools are named, semver-versioned capabilities with a uniform execution
// contract. Each tool is backed by a workflow, a retriever, a prompt
// template or a hybrid (fused) retriever. Retrievers adapt vector, graph
// and relational backends to one query shape, and composite retrievers
// merge their ranked lists with reciprocal rank fusion.
//
// # Quick Start
//
// Declare retrievers and tools:
//
//	retrievers:
//	  notes:
//	    kind: vector
//	    config:
//	      store: {type: chromem}
//	      documents:
//	        - {id: n1, text: "Walked along the river at dawn"}
//	tools:
//	  - name: search_notes
//	    version: 1.0.0
//	    kind: retrieval
//	    config: {retriever: notes, top_k: 3}
//
// Run it:
//
//	conductor exec search_notes --arg query=river --config conductor.yaml
//	conductor serve --config conductor.yaml
//
// # Using as Go Library
//
//	cfg, loader, err := config.LoadConfigFile(ctx, "conductor.yaml")
//	...
//	rt, err := builder.Build(ctx, cfg, builder.WithLLM("default", myLLM))
//	...
//	items, err := rt.Tools.Execute(ctx, "search_notes", map[string]any{"query": "river"})
//
// # Packages
//
//   - pkg/tool: tool contract, metadata and the versioned registry
//   - pkg/retriever: strategies, composite fusion, retry and health
//   - pkg/backend: vector, graph and relational backend clients
//   - pkg/builder: assembles registries from configuration
//   - pkg/config: configuration loading, providers and hot reload
//   - pkg/telemetry: tracing, metrics and execution hooks
//   - pkg/server: ops HTTP endpoints
package conductor
