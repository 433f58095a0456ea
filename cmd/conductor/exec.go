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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/conductor/pkg/retriever"
	"github.com/kadirpekel/conductor/pkg/tool"
)

// ExecCmd executes one tool through the registry, with the same timeout
// and telemetry handling a library caller gets.
type ExecCmd struct {
	Name    string            `arg:"" help:"Tool name."`
	Version string            `short:"v" help:"Tool version (default: latest)."`
	Subtool string            `short:"s" help:"Execute this subtool instead of the tool."`
	Arg     map[string]string `short:"a" help:"Argument as key=value. Values are parsed as YAML scalars." placeholder:"KEY=VALUE"`
	JSON    string            `name:"json" help:"Arguments as a JSON object. --arg values override it."`
	Timeout time.Duration     `help:"Execution timeout (default: the tool's own, then execution.default_timeout)."`
	Format  string            `short:"f" help:"Output format: json, yaml." default:"json" enum:"json,yaml"`
}

func (c *ExecCmd) Run(cli *CLI) error {
	args, err := parseArgs(c.JSON, c.Arg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cli.Globals)
	if err != nil {
		return err
	}
	defer s.Close()

	var opts []tool.ExecuteOption
	if c.Version != "" {
		opts = append(opts, tool.WithVersion(c.Version))
	}
	if c.Timeout > 0 {
		opts = append(opts, tool.WithTimeout(c.Timeout))
	}

	var items []tool.Item
	if c.Subtool != "" {
		items, err = s.rt.Tools.ExecuteSubtool(ctx, c.Name, c.Subtool, args, opts...)
	} else {
		items, err = s.rt.Tools.Execute(ctx, c.Name, args, opts...)
	}
	if err != nil {
		return err
	}
	if items == nil {
		items = []tool.Item{}
	}
	return printValue(c.Format, items)
}

// parseArgs merges a JSON object with key=value overrides.
func parseArgs(raw string, kv map[string]string) (map[string]any, error) {
	args := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("--json must be a JSON object: %w", err)
		}
	}
	maps.Copy(args, parseScalars(kv))
	return args, nil
}

// parseScalars decodes each value as a YAML scalar so that numbers and
// booleans keep their type.
func parseScalars(kv map[string]string) map[string]any {
	out := make(map[string]any, len(kv))
	for k, v := range kv {
		var value any
		if err := yaml.Unmarshal([]byte(v), &value); err != nil || value == nil {
			value = v
		}
		out[k] = value
	}
	return out
}

// RetrieveCmd queries one retriever without going through a tool.
type RetrieveCmd struct {
	Retriever string            `arg:"" help:"Retriever name."`
	Query     string            `arg:"" help:"Query text."`
	TopK      int               `short:"k" help:"Maximum number of results." default:"5"`
	Filter    map[string]string `help:"Payload filter as key=value." placeholder:"KEY=VALUE"`
	Format    string            `short:"f" help:"Output format: json, yaml." default:"json" enum:"json,yaml"`
}

func (c *RetrieveCmd) Run(cli *CLI) error {
	filters := parseScalars(c.Filter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cli.Globals)
	if err != nil {
		return err
	}
	defer s.Close()

	items, err := s.rt.Retrievers.Retrieve(ctx, c.Retriever, retriever.Query{Text: c.Query}, c.TopK, retriever.Filters(filters))
	if err != nil {
		return err
	}
	if items == nil {
		items = []retriever.Item{}
	}
	return printValue(c.Format, items)
}
