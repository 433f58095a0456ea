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
	"os"

	"github.com/kadirpekel/conductor/pkg/builder"
)

// ValidateCmd checks a configuration file. With --build it also creates
// every retriever and tool, which catches unknown references and
// unreachable backends.
type ValidateCmd struct {
	File        string `arg:"" optional:"" name:"file" help:"Configuration file path (default: --config)." placeholder:"PATH"`
	Format      string `short:"f" help:"Output format: compact, json." default:"compact" enum:"compact,json"`
	Build       bool   `help:"Also build the runtime."`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

// validationResult is the JSON output of the validate command.
type validationResult struct {
	Valid      bool   `json:"valid"`
	File       string `json:"file"`
	Stage      string `json:"stage,omitempty"`
	Error      string `json:"error,omitempty"`
	Tools      int    `json:"tools"`
	Retrievers int    `json:"retrievers"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	ctx := context.Background()
	g := cli.Globals
	if c.File != "" {
		g.Config = c.File
	}

	cfg, loader, err := openLoader(ctx, g)
	if err != nil {
		return c.fail(g.Config, "load", err)
	}
	_ = loader.Close()

	if c.Build {
		rt, err := builder.Build(ctx, cfg)
		if err != nil {
			return c.fail(g.Config, "build", err)
		}
		_ = rt.Close()
	}

	if c.PrintConfig {
		return printYAML(cfg)
	}

	if c.Format == formatJSON {
		return printValue(formatJSON, validationResult{
			Valid:      true,
			File:       g.Config,
			Tools:      len(cfg.Tools),
			Retrievers: len(cfg.Retrievers),
		})
	}
	fmt.Fprintf(stdout, "%s: valid (%d tools, %d retrievers)\n", g.Config, len(cfg.Tools), len(cfg.Retrievers))
	return nil
}

func (c *ValidateCmd) fail(file, stage string, err error) error {
	if c.Format == formatJSON {
		_ = printValue(formatJSON, validationResult{File: file, Stage: stage, Error: err.Error()})
	} else {
		fmt.Fprintf(os.Stderr, "%s: %s error: %s\n", file, stage, err)
	}
	return fmt.Errorf("configuration is invalid")
}
