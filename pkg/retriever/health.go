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

package retriever

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthStatus represents the health state of a retriever.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"

	// HealthStatusUnknown marks strategies that cannot be pinged.
	HealthStatusUnknown HealthStatus = "unknown"
)

// HealthCheck is the result of pinging one retriever.
type HealthCheck struct {
	Retriever string        `json:"retriever"`
	Kind      Kind          `json:"kind"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// IsHealthy returns false only for unhealthy retrievers.
func (h HealthCheck) IsHealthy() bool {
	return h.Status != HealthStatusUnhealthy
}

// Health pings every registered retriever concurrently, each bounded by
// timeout. Results are ordered by retriever name.
func (r *Registry) Health(ctx context.Context, timeout time.Duration) []HealthCheck {
	names := r.Names()
	checks := make([]HealthCheck, len(names))

	var g errgroup.Group
	for i, name := range names {
		s, _ := r.strategies.Get(name)
		g.Go(func() error {
			checks[i] = checkStrategy(ctx, name, s, timeout)
			return nil
		})
	}
	_ = g.Wait()

	return checks
}

func checkStrategy(ctx context.Context, name string, s Strategy, timeout time.Duration) HealthCheck {
	start := time.Now()
	check := HealthCheck{
		Retriever: name,
		Kind:      s.Metadata().Kind,
		Timestamp: start,
	}

	p, ok := s.(Pinger)
	if !ok {
		check.Status = HealthStatusUnknown
		check.Message = "strategy does not support health checks"
		return check
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := p.Ping(ctx); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = err.Error()
	} else {
		check.Status = HealthStatusHealthy
	}
	check.Latency = time.Since(start)
	return check
}
