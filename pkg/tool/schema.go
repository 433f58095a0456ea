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

package tool

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	invopop "github.com/invopop/jsonschema"
)

// SchemaFor generates a JSON schema from a Go type using struct tags.
//
// Supported tags:
//   - json:"name" - Parameter name
//   - json:",omitempty" - Optional parameter
//   - jsonschema:"required" - Explicitly mark as required
//   - jsonschema:"description=..." - Parameter description
//   - jsonschema:"enum=a,enum=b" - Allowed values
//   - jsonschema:"minimum=N,maximum=M" - Numeric constraints
//
// Example:
//
//	type SearchArgs struct {
//	    Query string `json:"query" jsonschema:"required,description=Search query"`
//	    TopK  int    `json:"top_k,omitempty" jsonschema:"minimum=1,maximum=50"`
//	}
//	schema, _ := tool.SchemaFor[SearchArgs]()
func SchemaFor[T any]() (map[string]any, error) {
	reflector := &invopop.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// MustSchemaFor is SchemaFor that panics on error. Use it in package-level
// declarations.
func MustSchemaFor[T any]() map[string]any {
	s, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// Validator checks argument maps against a compiled input schema.
type Validator struct {
	resolved *jsonschema.Resolved
}

// CompileSchema resolves a schema once so every execution validates
// against the same compiled form. A nil or empty schema accepts anything.
func CompileSchema(schema map[string]any) (*Validator, error) {
	if len(schema) == 0 {
		return &Validator{}, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema: %w", err)
	}
	return &Validator{resolved: resolved}, nil
}

// Validate checks args. Values are normalized through JSON so Go numeric
// and slice types validate the same way decoded JSON does.
func (v *Validator) Validate(args map[string]any) error {
	if v == nil || v.resolved == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments are not JSON-serializable: %w", err)
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return err
	}
	return v.resolved.Validate(instance)
}

// Decode converts validated arguments into a typed struct.
func Decode[T any](args map[string]any) (T, error) {
	var out T
	if args == nil {
		return out, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return out, fmt.Errorf("failed to marshal args: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	return out, nil
}
