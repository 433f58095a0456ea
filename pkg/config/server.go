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
	"time"
)

// ServerConfig configures the operations HTTP server.
type ServerConfig struct {
	// Address to listen on.
	// Default: ":9090"
	Address string `yaml:"address,omitempty"`

	// ReadTimeout bounds reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`

	// WriteTimeout bounds writing a response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`

	// HealthTimeout bounds each retriever ping behind /readyz.
	// Default: 2s
	HealthTimeout time.Duration `yaml:"health_timeout,omitempty"`
}

// SetDefaults applies default values to ServerConfig.
func (c *ServerConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":9090"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = 2 * time.Second
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 || c.HealthTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}
