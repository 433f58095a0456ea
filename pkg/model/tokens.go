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

package model

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "cl100k_base"

// TokenCounter counts prompt tokens.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with a tiktoken encoding.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
	name     string
	mu       sync.RWMutex
}

var (
	// Encodings are expensive to build; cache them per name.
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter creates a counter for an encoding name such as
// "cl100k_base" or a model name such as "gpt-4o".
func NewTokenCounter(name string) (*TiktokenCounter, error) {
	if name == "" {
		name = DefaultEncoding
	}

	cacheMu.RLock()
	cached, ok := encodingCache[name]
	cacheMu.RUnlock()
	if ok {
		return &TiktokenCounter{encoding: cached, name: name}, nil
	}

	encoding, err := tiktoken.GetEncoding(name)
	if err != nil {
		encoding, err = tiktoken.EncodingForModel(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding %q: %w", name, err)
		}
	}

	cacheMu.Lock()
	encodingCache[name] = encoding
	cacheMu.Unlock()

	return &TiktokenCounter{encoding: encoding, name: name}, nil
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.encoding.Encode(text, nil, nil))
}

// Encoding returns the encoding or model name the counter was built for.
func (c *TiktokenCounter) Encoding() string { return c.name }

// TokenCounterFunc adapts a function to TokenCounter.
type TokenCounterFunc func(text string) int

func (f TokenCounterFunc) Count(text string) int { return f(text) }
