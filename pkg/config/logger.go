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
	"fmt"
	"slices"
	"strings"
)

// Log formats understood by package logger.
var logFormats = []string{"simple", "verbose", "json"}

// LoggerConfig configures logging behavior.
//
// CLI flags (--log-level, --log-format, --log-file) override these values.
//
// Example:
//
//	logger:
//	  level: info
//	  file: conductor.log
//	  format: simple
type LoggerConfig struct {
	// Level specifies the log level (debug, info, warn, error).
	// Default: info
	Level string `yaml:"level,omitempty"`

	// File specifies the log file path. Logs go to stderr when empty.
	File string `yaml:"file,omitempty"`

	// Format is "simple" (level + message), "verbose" (time + level +
	// message) or "json".
	// Default: simple
	Format string `yaml:"format,omitempty"`
}

// SetDefaults applies default values to LoggerConfig.
func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// Validate checks the logger configuration.
func (c *LoggerConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
	}
	if c.Format != "" && !slices.Contains(logFormats, strings.ToLower(c.Format)) {
		return fmt.Errorf("invalid log format %q (valid: %s)", c.Format, strings.Join(logFormats, ", "))
	}
	return nil
}
