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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/conductor/pkg/config/provider"
)

// Loader reads configuration from a provider and, while watching, hands
// every changed and valid document to the onChange callback.
type Loader struct {
	provider provider.Provider
	onChange func(*Config)

	mu     sync.Mutex
	digest uint64
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange sets the callback that receives reloaded configurations.
// It is not called for the initial Load or for byte-identical reloads.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) {
		l.onChange = fn
	}
}

// NewLoader creates a Loader over p.
func NewLoader(p provider.Provider, opts ...LoaderOption) *Loader {
	l := &Loader{provider: p}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open creates the provider described by pc, loads the first configuration
// and returns the loader for watching. For file sources the dotenv files
// next to the config are loaded first. The caller closes the loader.
func Open(ctx context.Context, pc provider.ProviderConfig, opts ...LoaderOption) (*Config, *Loader, error) {
	if pc.Type == provider.TypeFile || pc.Type == "" {
		if err := LoadEnvFiles(filepath.Dir(pc.Path)); err != nil {
			slog.Warn("Failed to load env files", "path", pc.Path, "error", err)
		}
	}

	p, err := provider.New(pc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s provider: %w", pc.Type, err)
	}
	l := NewLoader(p, opts...)
	cfg, err := l.Load(ctx)
	if err != nil {
		return nil, nil, errors.Join(err, l.Close())
	}
	return cfg, l, nil
}

// Load reads the current document and returns it parsed, defaulted and
// validated.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg, _, err := l.read(ctx)
	return cfg, err
}

// read loads the document and reports whether its bytes differ from the
// last document read successfully.
func (l *Loader) read(ctx context.Context) (*Config, bool, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read config from %s: %w", l.provider.Type(), err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, false, err
	}

	sum := xxhash.Sum64(data)
	l.mu.Lock()
	changed := sum != l.digest
	l.digest = sum
	l.mu.Unlock()
	return cfg, changed, nil
}

// Parse turns a YAML or JSON document into a defaulted, validated Config.
// Environment references in string values are expanded before decoding.
func Parse(data []byte) (*Config, error) {
	doc, err := document(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := Decode(ExpandEnv(doc), cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// document decodes data as a JSON object when it starts with a brace and
// as YAML otherwise. An empty document is an empty map.
func document(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	doc := map[string]any{}
	if len(trimmed) == 0 {
		return doc, nil
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &doc); err == nil {
			return doc, nil
		}
	}
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("config is neither valid YAML nor JSON: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// Watch blocks until ctx ends, reloading on every provider signal.
// Documents that fail to parse or validate are logged and the previous
// configuration stays in effect.
func (l *Loader) Watch(ctx context.Context) error {
	changes, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch %s config: %w", l.provider.Type(), err)
	}
	if changes == nil {
		slog.Info("Config source does not support watching", "provider", l.provider.Type())
		<-ctx.Done()
		return ctx.Err()
	}
	slog.Info("Watching config for changes", "provider", l.provider.Type())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			l.reload(ctx)
		}
	}
}

func (l *Loader) reload(ctx context.Context) {
	cfg, changed, err := l.read(ctx)
	switch {
	case err != nil:
		slog.Error("Config reload rejected", "provider", l.provider.Type(), "error", err)
	case !changed:
		slog.Debug("Config unchanged", "provider", l.provider.Type())
	default:
		slog.Info("Config reloaded", "retrievers", len(cfg.Retrievers), "tools", len(cfg.Tools))
		if l.onChange != nil {
			l.onChange(cfg)
		}
	}
}

// Close closes the provider.
func (l *Loader) Close() error {
	return l.provider.Close()
}

// Provider returns the underlying provider.
func (l *Loader) Provider() provider.Provider {
	return l.provider
}

// Decode maps a generic block onto out by yaml field name. Durations accept
// strings such as "250ms" and comma-separated strings fill slices. The
// builder factories use it for kind-specific config blocks.
func Decode(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
