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

package builder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kadirpekel/conductor/pkg/config"
)

// Reloader holds the current Runtime and swaps in a freshly built one when
// the configuration changes. Readers always see a complete generation.
type Reloader struct {
	current atomic.Pointer[Runtime]
	opts    []Option
	drain   time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewReloader starts from rt. Replaced runtimes are closed after drain so
// executions that already resolved them can finish.
func NewReloader(rt *Runtime, drain time.Duration, opts ...Option) *Reloader {
	r := &Reloader{opts: opts, drain: drain}
	r.current.Store(rt)
	return r
}

// Current returns the active runtime.
func (r *Reloader) Current() *Runtime {
	return r.current.Load()
}

// Reload builds a runtime from cfg and swaps it in. On failure the active
// runtime stays in place.
func (r *Reloader) Reload(ctx context.Context, cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("reloader is closed")
	}

	next, err := Build(ctx, cfg, r.opts...)
	if err != nil {
		slog.Error("Runtime rebuild failed; keeping the active runtime", "error", err)
		return err
	}

	prev := r.current.Swap(next)
	slog.Info("Runtime swapped", "tools", len(next.Tools.Names()), "retrievers", len(next.Retrievers.Names()))
	if prev != nil {
		r.retire(prev)
	}
	return nil
}

func (r *Reloader) retire(rt *Runtime) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.drain > 0 {
			time.Sleep(r.drain)
		}
		if err := rt.Close(); err != nil {
			slog.Warn("Failed to close replaced runtime", "error", err)
		}
	}()
}

// Close closes the active runtime and waits for replaced ones to close.
func (r *Reloader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	if rt := r.current.Load(); rt != nil {
		return rt.Close()
	}
	return nil
}
