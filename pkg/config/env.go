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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFiles are loaded in order by LoadEnvFiles. Earlier files win because
// godotenv never overrides variables that are already set.
var EnvFiles = []string{".env.local", ".env"}

// LoadEnvFiles loads the dotenv files in dir that exist. Variables already
// present in the environment are kept.
func LoadEnvFiles(dir string) error {
	for _, name := range EnvFiles {
		path := filepath.Join(dir, name)
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// envRef matches $$, ${VAR}, ${VAR:-default} and $VAR.
var envRef = regexp.MustCompile(`\$\$|\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnv returns a copy of v with environment references expanded in
// every string, descending into maps and lists.
func ExpandEnv[T any](v T) T {
	out, _ := expandAny(v).(T)
	return out
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandAny(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandAny(item)
		}
		return out
	}
	return v
}

// expandEnvString expands references in s. "$$" is a literal dollar and
// ${VAR:-default} falls back when VAR is unset or empty.
func expandEnvString(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		switch {
		case ref == "$$":
			return "$"
		case strings.HasPrefix(ref, "${"):
			name, def, hasDefault := strings.Cut(ref[2:len(ref)-1], ":-")
			if val := os.Getenv(name); val != "" || !hasDefault {
				return val
			}
			return def
		default:
			return os.Getenv(ref[1:])
		}
	})
}
