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
	"fmt"

	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/tool"
	"github.com/kadirpekel/conductor/pkg/tool/functiontool"
	"github.com/kadirpekel/conductor/pkg/tool/retrievaltool"
	"github.com/kadirpekel/conductor/pkg/tool/templatetool"
	"github.com/kadirpekel/conductor/pkg/tool/workflowtool"
)

// ToolFactory creates the tool declared by cfg.
type ToolFactory func(ctx context.Context, cfg *config.ToolConfig, deps *Deps) (tool.Tool, error)

// ToolFactories maps each backend kind to its factory. Hybrid tools are
// retrieval tools over a hybrid retriever.
var ToolFactories = map[tool.BackendKind]ToolFactory{
	tool.BackendRetrieval: newRetrievalTool,
	tool.BackendHybrid:    newRetrievalTool,
	tool.BackendTemplated: newTemplatedTool,
	tool.BackendWorkflow:  newWorkflowTool,
}

func newRetrievalTool(_ context.Context, cfg *config.ToolConfig, deps *Deps) (tool.Tool, error) {
	var rc retrievaltool.Config
	if err := config.Decode(cfg.Config, &rc); err != nil {
		return nil, err
	}
	t, err := retrievaltool.New(cfg.Metadata(), deps.Retrievers, rc)
	if err != nil {
		return nil, err
	}
	t.Timeout = cfg.Timeout
	return t, nil
}

func newTemplatedTool(_ context.Context, cfg *config.ToolConfig, deps *Deps) (tool.Tool, error) {
	var tc templatetool.Config
	if err := config.Decode(cfg.Config, &tc); err != nil {
		return nil, err
	}
	llm, err := deps.LLM(tc.LLM)
	if err != nil {
		return nil, err
	}
	// The LLM's prompt budget applies unless the tool sets its own.
	if lc := deps.LLMConfig(tc.LLM); lc != nil && tc.MaxPromptTokens == 0 {
		tc.MaxPromptTokens = lc.MaxPromptTokens
		if tc.Encoding == "" {
			tc.Encoding = lc.Encoding
		}
	}
	t, err := templatetool.New(cfg.Metadata(), llm, tc)
	if err != nil {
		return nil, err
	}
	t.Timeout = cfg.Timeout
	return t, nil
}

func newWorkflowTool(_ context.Context, cfg *config.ToolConfig, deps *Deps) (tool.Tool, error) {
	var wc workflowtool.Config
	if err := config.Decode(cfg.Config, &wc); err != nil {
		return nil, err
	}
	t, err := workflowtool.New(cfg.Metadata(), wc, workflowtool.Deps{
		Retrievers: deps.Retrievers,
		LLM:        deps.LLM,
	})
	if err != nil {
		return nil, err
	}
	t.Timeout = cfg.Timeout
	return t, nil
}

func buildTools(ctx context.Context, decls []*config.ToolConfig, deps *Deps, tools *tool.Registry) error {
	for _, cfg := range decls {
		kind, err := tool.ParseBackendKind(cfg.Kind)
		if err != nil {
			return fmt.Errorf("tool %s: %w", cfg.Key(), err)
		}
		factory, ok := ToolFactories[kind]
		if !ok {
			return fmt.Errorf("tool %s: no factory for kind %s", cfg.Key(), kind)
		}
		t, err := factory(ctx, cfg, deps)
		if err != nil {
			return fmt.Errorf("tool %s: %w", cfg.Key(), err)
		}
		if err := tools.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// FunctionTool builds a programmatic tool from a typed function, for use
// with WithTools.
func FunctionTool[Args any](cfg functiontool.Config, fn functiontool.Func[Args]) (tool.Tool, error) {
	return functiontool.New(cfg, fn)
}

// MustFunctionTool is FunctionTool that panics on error.
func MustFunctionTool[Args any](cfg functiontool.Config, fn functiontool.Func[Args]) tool.Tool {
	t, err := FunctionTool(cfg, fn)
	if err != nil {
		panic("failed to create function tool: " + err.Error())
	}
	return t
}
