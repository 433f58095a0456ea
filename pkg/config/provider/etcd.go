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
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdDialTimeout = 5 * time.Second

// EtcdProvider loads config from an etcd key and watches it.
type EtcdProvider struct {
	key    string
	client *clientv3.Client

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewEtcdProvider creates a provider for key.
func NewEtcdProvider(key string, endpoints []string) (*EtcdProvider, error) {
	if key == "" {
		return nil, fmt.Errorf("etcd key is required")
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpointsOr(endpoints, DefaultEtcdEndpoint),
		DialTimeout: etcdDialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return &EtcdProvider{key: key, client: client}, nil
}

// Type returns TypeEtcd.
func (p *EtcdProvider) Type() Type { return TypeEtcd }

// Load reads the key value.
func (p *EtcdProvider) Load(ctx context.Context) ([]byte, error) {
	resp, err := p.client.Get(ctx, p.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read etcd key %s: %w", p.key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("etcd key %s not found", p.key)
	}
	return resp.Kvs[0].Value, nil
}

// Watch signals on every put or delete of the key.
func (p *EtcdProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("provider is already watching")
	}
	p.cancel = cancel
	p.mu.Unlock()

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for ctx.Err() == nil {
			for resp := range p.client.Watch(clientv3.WithRequireLeader(ctx), p.key) {
				if err := resp.Err(); err != nil {
					slog.Warn("Etcd watch error", "key", p.key, "error", err)
					continue
				}
				if len(resp.Events) > 0 && notify(ch) {
					slog.Debug("Etcd key changed", "key", p.key, "revision", resp.Header.Revision)
				}
			}
			// The watch channel closes when the leader is lost or ctx ends.
			if !sleep(ctx, retryDelay) {
				return
			}
		}
	}()

	slog.Info("Watching etcd key", "key", p.key)
	return ch, nil
}

// Close stops any running watch and closes the client.
func (p *EtcdProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return p.client.Close()
}

var _ Provider = (*EtcdProvider)(nil)
