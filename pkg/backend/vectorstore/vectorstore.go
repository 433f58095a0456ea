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

// Package vectorstore provides vector Backend Clients for the vector
// retrieval strategy: an embedded chromem-go store, Qdrant and Pinecone.
package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/conductor/pkg/retriever"
)

// Type identifies a vector store implementation.
type Type string

const (
	TypeChromem  Type = "chromem"
	TypeQdrant   Type = "qdrant"
	TypePinecone Type = "pinecone"
)

// Client is a vector Backend Client that can report its health.
type Client interface {
	retriever.VectorClient
	Ping(ctx context.Context) error
}

// Config selects and configures one vector store.
type Config struct {
	Type     Type            `yaml:"type" json:"type"`
	Chromem  *ChromemConfig  `yaml:"chromem,omitempty" json:"chromem,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty" json:"qdrant,omitempty"`
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty" json:"pinecone,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = TypeChromem
	}
	c.Type = Type(strings.ToLower(string(c.Type)))
	switch c.Type {
	case TypeChromem:
		if c.Chromem == nil {
			c.Chromem = &ChromemConfig{}
		}
	case TypeQdrant:
		if c.Qdrant == nil {
			c.Qdrant = &QdrantConfig{}
		}
		c.Qdrant.SetDefaults()
	case TypePinecone:
		if c.Pinecone == nil {
			c.Pinecone = &PineconeConfig{}
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeChromem:
		return nil
	case TypeQdrant:
		if c.Qdrant == nil || c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant: host is required")
		}
		return nil
	case TypePinecone:
		if c.Pinecone == nil || c.Pinecone.APIKey == "" {
			return fmt.Errorf("pinecone: api_key is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown vector store type %q (valid: chromem, qdrant, pinecone)", c.Type)
	}
}

// New creates a vector Backend Client from configuration. The returned
// client is owned by the caller.
func New(cfg Config) (Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case TypeQdrant:
		return NewQdrant(*cfg.Qdrant)
	case TypePinecone:
		return NewPinecone(*cfg.Pinecone)
	default:
		return NewChromem(*cfg.Chromem)
	}
}

// stringFilters renders filter values as strings for stores that only
// support string metadata.
func stringFilters(filters retriever.Filters) map[string]string {
	if len(filters) == 0 {
		return nil
	}
	out := make(map[string]string, len(filters))
	for k, v := range filters {
		out[k] = fmt.Sprint(v)
	}
	return out
}
