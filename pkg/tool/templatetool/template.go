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

package templatetool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"unicode"

	"github.com/Masterminds/sprig/v3"
)

// Engine selects the template syntax.
type Engine string

const (
	// EnginePlaceholder substitutes {name} and {name?}.
	EnginePlaceholder Engine = "placeholder"

	// EngineGo is text/template with the sprig function library.
	EngineGo Engine = "go"
)

// ParseEngine parses an engine name. An empty name selects the placeholder
// engine.
func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return EnginePlaceholder, nil
	case EnginePlaceholder, EngineGo:
		return e, nil
	}
	return "", fmt.Errorf("unknown template engine %q (valid: placeholder, go)", s)
}

// placeholderRegex matches {variable}, {a.b}, {variable?}, etc.
// Matches one or more opening braces, content without braces, one or more closing braces.
var placeholderRegex = regexp.MustCompile(`{+[^{}]*}+`)

// Template is a parsed prompt template.
type Template struct {
	raw    string
	engine Engine
	tmpl   *template.Template
}

// Parse parses text with engine.
func Parse(engine Engine, text string) (*Template, error) {
	if engine == "" {
		engine = EnginePlaceholder
	}
	t := &Template{raw: text, engine: engine}

	switch engine {
	case EnginePlaceholder:
	case EngineGo:
		tmpl, err := template.New("prompt").
			Funcs(sprig.TxtFuncMap()).
			Option("missingkey=error").
			Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template: %w", err)
		}
		t.tmpl = tmpl
	default:
		return nil, fmt.Errorf("unknown template engine %q", engine)
	}
	return t, nil
}

// MustParse is like Parse but panics on error.
func MustParse(engine Engine, text string) *Template {
	t, err := Parse(engine, text)
	if err != nil {
		panic(fmt.Sprintf("templatetool.MustParse: %v", err))
	}
	return t
}

// Raw returns the template text.
func (t *Template) Raw() string { return t.raw }

// Engine returns the template engine.
func (t *Template) Engine() Engine { return t.engine }

// Render resolves the template against vars.
func (t *Template) Render(vars map[string]any) (string, error) {
	if t.engine == EngineGo {
		var buf bytes.Buffer
		if vars == nil {
			vars = map[string]any{}
		}
		if err := t.tmpl.Execute(&buf, vars); err != nil {
			return "", fmt.Errorf("failed to render template: %w", err)
		}
		return buf.String(), nil
	}
	return injectVars(t.raw, vars)
}

// Placeholders returns the placeholder names of a placeholder template and
// whether each is required. Go templates report none.
func (t *Template) Placeholders() map[string]bool {
	out := make(map[string]bool)
	if t.engine != EnginePlaceholder {
		return out
	}
	for _, match := range placeholderRegex.FindAllString(t.raw, -1) {
		name, optional := placeholderName(match)
		if !isValidPath(name) {
			continue
		}
		out[name] = out[name] || !optional
	}
	return out
}

// injectVars replaces every placeholder in text.
//
// Required placeholders ({name}) fail when the variable is missing; optional
// ones ({name?}) render as the empty string. Dotted names walk nested maps.
// Anything that is not a valid name, such as literal JSON, is left as-is.
func injectVars(text string, vars map[string]any) (string, error) {
	if text == "" {
		return "", nil
	}

	var result strings.Builder
	lastIndex := 0
	for _, m := range placeholderRegex.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		result.WriteString(text[lastIndex:start])

		replacement, err := replaceMatch(text[start:end], vars)
		if err != nil {
			return "", err
		}
		result.WriteString(replacement)
		lastIndex = end
	}
	result.WriteString(text[lastIndex:])
	return result.String(), nil
}

func placeholderName(match string) (string, bool) {
	name := strings.TrimSpace(strings.Trim(match, "{}"))
	if trimmed, ok := strings.CutSuffix(name, "?"); ok {
		return trimmed, true
	}
	return name, false
}

func replaceMatch(match string, vars map[string]any) (string, error) {
	name, optional := placeholderName(match)
	if !isValidPath(name) {
		return match, nil
	}

	value, ok := lookup(vars, name)
	if !ok {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("missing template variable %q", name)
	}
	return formatValue(value), nil
}

func lookup(vars map[string]any, path string) (any, bool) {
	var cur any = vars
	for part := range strings.SplitSeq(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// formatValue renders strings verbatim, nil as empty, scalars with %v and
// everything else as JSON.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func isValidPath(name string) bool {
	if name == "" {
		return false
	}
	for part := range strings.SplitSeq(name, ".") {
		if !isIdentifier(part) {
			return false
		}
	}
	return true
}

// isIdentifier checks if a string is a valid identifier.
// Valid identifiers start with a letter or underscore, followed by letters, digits, or underscores.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
		} else if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
