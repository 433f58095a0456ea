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
	"fmt"

	"github.com/kadirpekel/conductor/pkg/tool"
)

// ToolsCmd groups the tool inspection commands.
type ToolsCmd struct {
	List     ToolsListCmd     `cmd:"" default:"withargs" help:"List tools (latest version of each unless --version is set)."`
	Describe ToolsDescribeCmd `cmd:"" help:"Show the metadata of a tool version."`
	Subtools ToolsSubtoolsCmd `cmd:"" help:"List the subtools of a tool version."`
}

type ToolsListCmd struct {
	Kind    string   `help:"Only tools of this backend kind (workflow, retrieval, templated, hybrid)."`
	Domain  string   `help:"Only tools owned by this domain."`
	Tag     []string `help:"Only tools carrying every given tag."`
	Version string   `help:"List this exact version of each name."`
	Format  string   `short:"f" help:"Output format: table, json, yaml." default:"table" enum:"table,json,yaml"`
}

func (c *ToolsListCmd) Run(cli *CLI) error {
	filter := tool.ListFilter{OwnerDomain: c.Domain, Tags: c.Tag, Version: c.Version}
	if c.Kind != "" {
		kind, err := tool.ParseBackendKind(c.Kind)
		if err != nil {
			return err
		}
		filter.BackendKind = kind
	}

	s, err := openSession(context.Background(), cli.Globals)
	if err != nil {
		return err
	}
	defer s.Close()

	tools := s.rt.Tools.List(filter)
	if c.Format == "table" {
		return printToolTable(tools)
	}
	if tools == nil {
		tools = []tool.Metadata{}
	}
	return printValue(c.Format, tools)
}

type ToolsDescribeCmd struct {
	Name    string `arg:"" help:"Tool name."`
	Version string `short:"v" help:"Tool version (default: latest)."`
	Format  string `short:"f" help:"Output format: yaml, json." default:"yaml" enum:"yaml,json"`
}

func (c *ToolsDescribeCmd) Run(cli *CLI) error {
	s, err := openSession(context.Background(), cli.Globals)
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.rt.Tools.Resolve(c.Name, c.Version)
	if err != nil {
		return err
	}
	meta := t.Metadata()
	return printValue(c.Format, map[string]any{
		"metadata": meta,
		"versions": s.rt.Tools.Versions(meta.Name),
	})
}

type ToolsSubtoolsCmd struct {
	Name    string `arg:"" help:"Tool name."`
	Version string `short:"v" help:"Tool version (default: latest)."`
}

func (c *ToolsSubtoolsCmd) Run(cli *CLI) error {
	s, err := openSession(context.Background(), cli.Globals)
	if err != nil {
		return err
	}
	defer s.Close()

	names, err := s.rt.Tools.ListSubtools(c.Name, c.Version)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(stdout, n)
	}
	return nil
}
