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

	"github.com/go-zookeeper/zk"
)

const zkSessionTimeout = 10 * time.Second

// ZookeeperProvider loads config from a znode and watches it.
type ZookeeperProvider struct {
	path string
	conn *zk.Conn

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewZookeeperProvider connects to the ensemble. The connection is
// established in the background.
func NewZookeeperProvider(path string, endpoints []string) (*ZookeeperProvider, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path == "/" {
		return nil, fmt.Errorf("zookeeper path is required")
	}
	conn, _, err := zk.Connect(endpointsOr(endpoints, DefaultZookeeperEndpoint), zkSessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	return &ZookeeperProvider{path: path, conn: conn}, nil
}

// Type returns TypeZookeeper.
func (p *ZookeeperProvider) Type() Type { return TypeZookeeper }

// Load reads the znode data.
func (p *ZookeeperProvider) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read znode %s: %w", p.path, err)
	}
	return data, nil
}

// Watch re-arms a data watch after every event, since zookeeper watches
// fire once.
func (p *ZookeeperProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
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
		for {
			_, _, events, err := p.conn.GetW(p.path)
			if err != nil {
				slog.Warn("Zookeeper watch failed", "path", p.path, "error", err)
				if !sleep(ctx, retryDelay) {
					return
				}
				continue
			}

			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				switch ev.Type {
				case zk.EventNodeDataChanged, zk.EventNodeCreated:
					if notify(ch) {
						slog.Debug("Znode changed", "path", p.path)
					}
				case zk.EventNodeDeleted:
					slog.Warn("Znode was deleted", "path", p.path)
				case zk.EventNotWatching:
					if !sleep(ctx, retryDelay) {
						return
					}
				}
			}
		}
	}()

	slog.Info("Watching zookeeper node", "path", p.path)
	return ch, nil
}

// Close stops any running watch and closes the session.
func (p *ZookeeperProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.conn.Close()
	return nil
}

var _ Provider = (*ZookeeperProvider)(nil)
