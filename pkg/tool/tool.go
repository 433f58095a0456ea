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

// Package tool defines versioned tools and the registry that resolves and
// executes them.
//
// # Tool Model
//
// Every tool carries immutable Metadata keyed by (name, version). One name
// may have many versions; the registry resolves the highest semantic version
// when the caller does not ask for one.
//
//	Tool
//	  ├── Metadata()        - immutable descriptor
//	  ├── Execute()         - the uniform asynchronous contract
//	  ├── ListSubtools()    - empty by default
//	  └── ExecuteSubtool()  - SubtoolNotFoundError by default
//
// Implementations that route subtools also implement SubtoolRouter. Tools
// with argument rules beyond the input schema implement ArgumentValidator.
//
// # Implementations
//
//	retrievaltool.New(...)  - queries the retriever registry
//	workflowtool.New(...)   - runs a short step sequence
//	templatetool.New(...)   - renders a prompt and calls an LLM
//	functiontool.New(...)   - wraps a typed Go function
//
// Implementations embed Base to get the subtool defaults.
package tool

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kadirpekel/conductor/pkg/errs"
	"github.com/kadirpekel/conductor/pkg/retriever"
	"github.com/kadirpekel/conductor/pkg/telemetry"
)

// BackendKind is the closed set of tool implementation families.
type BackendKind string

const (
	BackendWorkflow  BackendKind = "workflow"
	BackendRetrieval BackendKind = "retrieval"
	BackendTemplated BackendKind = "templated"
	BackendHybrid    BackendKind = "hybrid"
)

// BackendKinds lists every valid backend kind.
func BackendKinds() []BackendKind {
	return []BackendKind{BackendWorkflow, BackendRetrieval, BackendTemplated, BackendHybrid}
}

// ParseBackendKind parses a backend kind case-insensitively.
func ParseBackendKind(s string) (BackendKind, error) {
	k := BackendKind(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(BackendKinds(), k) {
		return k, nil
	}
	return "", fmt.Errorf("unknown backend kind %q (valid: workflow, retrieval, templated, hybrid)", s)
}

// EffectBoundary declares the strongest side effect a tool may have.
type EffectBoundary string

const (
	EffectPure      EffectBoundary = "pure"
	EffectRetrieval EffectBoundary = "retrieval"
	EffectLLM       EffectBoundary = "llm"
	EffectExternal  EffectBoundary = "external"
)

// ParseEffectBoundary parses an effect boundary case-insensitively.
func ParseEffectBoundary(s string) (EffectBoundary, error) {
	e := EffectBoundary(strings.ToLower(strings.TrimSpace(s)))
	switch e {
	case EffectPure, EffectRetrieval, EffectLLM, EffectExternal:
		return e, nil
	}
	return "", fmt.Errorf("unknown effect boundary %q (valid: pure, retrieval, llm, external)", s)
}

// Metadata describes one tool version. It is built once at bootstrap and
// never mutated; the registry hands out copies.
type Metadata struct {
	Name           string         `json:"name"`
	Version        string         `json:"version"`
	Description    string         `json:"description,omitempty"`
	InputSchema    map[string]any `json:"input_schema,omitempty"`
	OutputSchema   map[string]any `json:"output_schema,omitempty"`
	BackendKind    BackendKind    `json:"backend_kind"`
	OwnerDomain    string         `json:"owner_domain,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	EffectBoundary EffectBoundary `json:"effect_boundary"`
	Subtools       []string       `json:"subtool_names,omitempty"`
}

// Validate checks required fields.
func (m Metadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("tool %s: version is required", m.Name)
	}
	if _, err := ParseBackendKind(string(m.BackendKind)); err != nil {
		return fmt.Errorf("tool %s@%s: %w", m.Name, m.Version, err)
	}
	if _, err := ParseEffectBoundary(string(m.EffectBoundary)); err != nil {
		return fmt.Errorf("tool %s@%s: %w", m.Name, m.Version, err)
	}
	return nil
}

// normalized returns a deep copy with set fields sorted and deduplicated
// and a default effect boundary derived from the backend kind.
func (m Metadata) normalized() Metadata {
	out := m.Clone()
	out.Tags = toSet(out.Tags)
	out.Subtools = toSet(out.Subtools)
	if out.EffectBoundary == "" {
		out.EffectBoundary = DefaultEffect(out.BackendKind)
	}
	return out
}

// DefaultEffect is the effect boundary assumed when none is declared.
func DefaultEffect(kind BackendKind) EffectBoundary {
	switch kind {
	case BackendRetrieval, BackendHybrid:
		return EffectRetrieval
	case BackendTemplated:
		return EffectLLM
	default:
		return EffectPure
	}
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	out := m
	out.Tags = slices.Clone(m.Tags)
	out.Subtools = slices.Clone(m.Subtools)
	out.InputSchema = cloneMap(m.InputSchema)
	out.OutputSchema = cloneMap(m.OutputSchema)
	return out
}

// HasTag reports whether the tool carries tag.
func (m Metadata) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// HasTags reports whether the tool carries every tag in tags.
func (m Metadata) HasTags(tags []string) bool {
	for _, t := range tags {
		if !m.HasTag(t) {
			return false
		}
	}
	return true
}

// Key returns "name@version".
func (m Metadata) Key() string { return m.Name + "@" + m.Version }

// Item is one typed output item.
type Item struct {
	ID         string                `json:"id,omitempty"`
	Score      float64               `json:"score,omitempty"`
	Content    map[string]any        `json:"content"`
	Provenance *retriever.Provenance `json:"provenance,omitempty"`
}

// Tool is the uniform execution contract.
type Tool interface {
	Metadata() Metadata

	// Execute runs the tool. Arguments have already been validated against
	// the input schema when called through the registry.
	Execute(ctx context.Context, args map[string]any) ([]Item, error)

	// ListSubtools returns the subtool names this tool exposes.
	ListSubtools() []string

	// ExecuteSubtool runs a named subtool.
	ExecuteSubtool(ctx context.Context, name string, args map[string]any) ([]Item, error)
}

// TimeoutProvider is implemented by tools that declare their own execution
// timeout. The registry uses it when the caller passes none.
type TimeoutProvider interface {
	ExecutionTimeout() time.Duration
}

// SubtoolRouter reports whether a tool can run a subtool. The registry
// rejects declared subtools the tool cannot route before anything runs.
type SubtoolRouter interface {
	RoutesSubtool(name string) bool
}

// ArgumentValidator is implemented by tools whose arguments need checks the
// input schema cannot express. The registry calls it after schema
// validation and before execution; subtool is empty for Execute.
type ArgumentValidator interface {
	ValidateArgs(subtool string, args map[string]any) error
}

// HookProvider is implemented by tools that carry their own observability
// hook. It runs after the registry hook.
type HookProvider interface {
	Hook() telemetry.Hook
}

// Base provides Metadata and the default subtool behavior. Embed it in
// tool implementations.
type Base struct {
	Meta    Metadata
	Timeout time.Duration
	OnExec  telemetry.Hook
}

func (b *Base) Metadata() Metadata { return b.Meta.Clone() }

// ListSubtools returns the declared subtool names.
func (b *Base) ListSubtools() []string { return slices.Clone(b.Meta.Subtools) }

// RoutesSubtool reports false: Base routes no subtools.
func (b *Base) RoutesSubtool(string) bool { return false }

// ExecuteSubtool always fails: subtool routing is left to implementations.
func (b *Base) ExecuteSubtool(_ context.Context, name string, _ map[string]any) ([]Item, error) {
	return nil, &errs.SubtoolNotFoundError{Tool: b.Meta.Name, Subtool: name}
}

func (b *Base) ExecutionTimeout() time.Duration { return b.Timeout }

func (b *Base) Hook() telemetry.Hook { return b.OnExec }

func toSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case map[string]any:
			out[k] = cloneMap(t)
		case []any:
			out[k] = cloneSlice(t)
		default:
			out[k] = v
		}
	}
	return out
}

func cloneSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		switch t := v.(type) {
		case map[string]any:
			out[i] = cloneMap(t)
		case []any:
			out[i] = cloneSlice(t)
		default:
			out[i] = v
		}
	}
	return out
}
