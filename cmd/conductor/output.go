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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/conductor/pkg/tool"
)

// Output formats.
const (
	formatYAML = "yaml"
	formatJSON = "json"
)

var stdout io.Writer = os.Stdout

// printValue writes v as indented JSON or as YAML. YAML goes through JSON
// first so field names follow the json tags.
func printValue(format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if format == formatJSON {
		_, err = fmt.Fprintln(stdout, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	return printYAML(generic)
}

// printYAML encodes v with its own yaml tags.
func printYAML(v any) error {
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output as YAML: %w", err)
	}
	return enc.Close()
}

// printToolTable writes one row per tool version.
func printToolTable(tools []tool.Metadata) error {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tKIND\tEFFECT\tDOMAIN\tTAGS")
	for _, m := range tools {
		domain := m.OwnerDomain
		if domain == "" {
			domain = "-"
		}
		tags := strings.Join(m.Tags, ",")
		if tags == "" {
			tags = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", m.Name, m.Version, m.BackendKind, m.EffectBoundary, domain, tags)
	}
	return w.Flush()
}
