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

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
)

// consulWaitTime bounds each blocking query.
const consulWaitTime = 5 * time.Minute

// ConsulProvider loads config from a Consul KV key and watches it with
// blocking queries.
type ConsulProvider struct {
	key    string
	client *api.Client

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConsulProvider creates a provider for key. Only the first endpoint is
// used; ACL tokens and TLS come from the standard CONSUL_* variables.
func NewConsulProvider(key string, endpoints []string) (*ConsulProvider, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return nil, fmt.Errorf("consul key is required")
	}

	cfg := api.DefaultConfig()
	cfg.Address = endpointsOr(endpoints, DefaultConsulEndpoint)[0]

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	return &ConsulProvider{key: key, client: client}, nil
}

// Type returns TypeConsul.
func (p *ConsulProvider) Type() Type { return TypeConsul }

// Load reads the key value.
func (p *ConsulProvider) Load(ctx context.Context) ([]byte, error) {
	data, _, err := p.get(ctx, 0)
	return data, err
}

func (p *ConsulProvider) get(ctx context.Context, waitIndex uint64) ([]byte, uint64, error) {
	opts := (&api.QueryOptions{WaitIndex: waitIndex, WaitTime: consulWaitTime}).WithContext(ctx)
	pair, meta, err := p.client.KV().Get(p.key, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read consul key %s: %w", p.key, err)
	}
	var index uint64
	if meta != nil {
		index = meta.LastIndex
	}
	if pair == nil {
		return nil, index, fmt.Errorf("consul key %s not found", p.key)
	}
	return pair.Value, index, nil
}

// Watch issues blocking queries and signals whenever the key's modify
// index advances.
func (p *ConsulProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("provider is already watching")
	}
	p.cancel = cancel
	p.mu.Unlock()

	_, index, err := p.get(ctx, 0)
	if err != nil && index == 0 {
		cancel()
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
		return nil, err
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for {
			_, next, err := p.get(ctx, index)
			if ctx.Err() != nil {
				return
			}
			if err != nil && next == 0 {
				slog.Warn("Consul watch failed", "key", p.key, "error", err)
				if !sleep(ctx, retryDelay) {
					return
				}
				continue
			}
			// Indexes can go backwards after a snapshot restore.
			if next < index {
				index = 0
				continue
			}
			if next != index {
				index = next
				if notify(ch) {
					slog.Debug("Consul key changed", "key", p.key, "index", next)
				}
			}
		}
	}()

	slog.Info("Watching consul key", "key", p.key)
	return ch, nil
}

// Close stops any running watch.
func (p *ConsulProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return nil
}

var _ Provider = (*ConsulProvider)(nil)
