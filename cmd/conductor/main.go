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

// Command conductor loads a tool and retriever configuration, serves the
// ops endpoints and executes tools from the command line.
//
// Usage:
//
//	conductor serve --config conductor.yaml
//	conductor tools list --kind retrieval
//	conductor exec search_entries --arg query="morning pages"
//	conductor retrieve journal "sleep quality" --top-k 3
//	conductor validate conductor.yaml
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config    string   `short:"c" help:"Configuration file path, or key path for remote providers." default:"conductor.yaml" env:"CONDUCTOR_CONFIG"`
	Provider  string   `help:"Configuration provider (file, consul, etcd, zookeeper)." default:"file" env:"CONDUCTOR_PROVIDER"`
	Endpoints []string `help:"Remote provider endpoints." env:"CONDUCTOR_ENDPOINTS" placeholder:"HOST:PORT"`

	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides the config file." env:"LOG_LEVEL"`
	LogFile   string `help:"Log file path (empty = stderr). Overrides the config file." env:"LOG_FILE"`
	LogFormat string `help:"Log format (simple, verbose, json). Overrides the config file." env:"LOG_FORMAT"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" help:"Serve health, readiness, metrics and the tool catalogue."`
	Tools    ToolsCmd    `cmd:"" help:"Inspect registered tools."`
	Exec     ExecCmd     `cmd:"" help:"Execute a tool or one of its subtools."`
	Retrieve RetrieveCmd `cmd:"" help:"Query a retriever directly."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Print the JSON Schema of the configuration."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("conductor"),
		kong.Description("Versioned tool registry and hybrid retrieval orchestration."),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(cli.Globals, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
