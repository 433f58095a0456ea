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
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/conductor/pkg/errs"
	"github.com/kadirpekel/conductor/pkg/telemetry"
)

// CompositeConfig configures a hybrid retriever.
type CompositeConfig struct {
	// Members are the names of the fused strategies, in tie-break order.
	Members []string `yaml:"members"`

	// Strict aborts the whole call when any member fails.
	Strict bool `yaml:"strict,omitempty"`

	// K is the reciprocal rank fusion constant.
	// Default: 60
	K int `yaml:"k,omitempty"`

	// MemberTimeout bounds each member call independently of the caller's
	// deadline.
	// Default: 10s
	MemberTimeout time.Duration `yaml:"member_timeout,omitempty"`

	// FetchK is how many results to request from each member.
	// Default: the caller's top_k
	FetchK int `yaml:"fetch_k,omitempty"`
}

// DefaultMemberTimeout bounds a member call when none is configured.
const DefaultMemberTimeout = 10 * time.Second

func (c *CompositeConfig) SetDefaults() {
	if c.K <= 0 {
		c.K = DefaultRRFK
	}
	if c.MemberTimeout == 0 {
		c.MemberTimeout = DefaultMemberTimeout
	}
}

func (c *CompositeConfig) Validate() error {
	if len(c.Members) == 0 {
		return fmt.Errorf("at least one member is required")
	}
	seen := make(map[string]struct{}, len(c.Members))
	for _, m := range c.Members {
		if m == "" {
			return fmt.Errorf("member name cannot be empty")
		}
		if _, dup := seen[m]; dup {
			return fmt.Errorf("member %q listed twice", m)
		}
		seen[m] = struct{}{}
	}
	if c.MemberTimeout < 0 {
		return fmt.Errorf("member_timeout cannot be negative")
	}
	return nil
}

// Resolver looks up strategies by name. *Registry implements it.
type Resolver interface {
	Resolve(name string) (Strategy, error)
}

// CompositeOption configures a Composite.
type CompositeOption func(*Composite)

// WithFingerprint overrides the dedup fingerprint.
func WithFingerprint(fp Fingerprint) CompositeOption {
	return func(c *Composite) {
		if fp != nil {
			c.fingerprint = fp
		}
	}
}

// WithCompositeMetrics records excluded members.
func WithCompositeMetrics(m telemetry.Metrics) CompositeOption {
	return func(c *Composite) {
		if m != nil {
			c.metrics = m
		}
	}
}

type member struct {
	name     string
	strategy Strategy
}

// Composite fans a query out to several strategies concurrently and fuses
// their rankings with reciprocal rank fusion.
type Composite struct {
	meta        Metadata
	members     []member
	config      CompositeConfig
	fingerprint Fingerprint
	metrics     telemetry.Metrics
	tracer      trace.Tracer
}

// NewComposite resolves every member through resolver. Members must be
// registered before the composite is built.
func NewComposite(meta Metadata, cfg CompositeConfig, resolver Resolver, opts ...CompositeOption) (*Composite, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("hybrid retriever %q: %w", meta.Name, err)
	}

	members := make([]member, 0, len(cfg.Members))
	var caps []string
	for _, name := range cfg.Members {
		if name == meta.Name {
			return nil, fmt.Errorf("hybrid retriever %q cannot include itself", meta.Name)
		}
		s, err := resolver.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("hybrid retriever %q: %w", meta.Name, err)
		}
		members = append(members, member{name: name, strategy: s})
		for _, c := range s.Metadata().Capabilities {
			if !slices.Contains(caps, c) {
				caps = append(caps, c)
			}
		}
	}

	meta.Kind = KindHybrid
	if len(meta.Capabilities) == 0 {
		meta.Capabilities = append(caps, CapabilityFusion)
	}

	c := &Composite{
		meta:        meta,
		members:     members,
		config:      cfg,
		fingerprint: DefaultFingerprint,
		metrics:     telemetry.NoopMetrics{},
		tracer:      telemetry.Tracer(telemetry.InstrumentationRetrievers),
	}
	for _, opt := range opts {
		opt(c)
	}

	slog.Debug("Hybrid retriever initialized",
		"retriever", meta.Name,
		"members", cfg.Members,
		"strict", cfg.Strict,
		"k", cfg.K)

	return c, nil
}

func (c *Composite) Metadata() Metadata { return c.meta }

// Members returns member names in declared order.
func (c *Composite) Members() []string {
	return slices.Clone(c.config.Members)
}

// Strict reports whether any member failure aborts the call.
func (c *Composite) Strict() bool { return c.config.Strict }

// MemberError reports one member's failure.
type MemberError struct {
	Member string
	Err    error
}

func (e *MemberError) Error() string {
	return fmt.Sprintf("member %q: %v", e.Member, e.Err)
}

func (e *MemberError) Unwrap() error { return e.Err }

func (c *Composite) Retrieve(ctx context.Context, query Query, topK int, filters Filters) ([]Item, error) {
	fetchK := c.config.FetchK
	if fetchK <= 0 {
		fetchK = topK
	}

	results := make([][]Item, len(c.members))
	failures := make([]error, len(c.members))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range c.members {
		g.Go(func() error {
			items, err := c.retrieveMember(gctx, m, query, fetchK, filters)
			if err != nil {
				merr := &MemberError{Member: m.name, Err: err}
				if c.config.Strict {
					return merr
				}
				failures[i] = merr
				return nil
			}
			results[i] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, &errs.BackendUnavailableError{Retriever: c.meta.Name, Query: query.Text, Err: err}
	}

	lists := make([]RankedList, 0, len(c.members))
	var failed []error
	for i, m := range c.members {
		if failures[i] != nil {
			failed = append(failed, failures[i])
			c.metrics.RecordCompositeMemberFailure(ctx, c.meta.Name, m.name)
			slog.Warn("Hybrid retriever member excluded",
				"retriever", c.meta.Name,
				"member", m.name,
				"error", failures[i])
			continue
		}
		lists = append(lists, RankedList{Source: m.name, Items: results[i]})
	}

	if len(lists) == 0 {
		return nil, &errs.BackendUnavailableError{
			Retriever: c.meta.Name,
			Query:     query.Text,
			Err:       fmt.Errorf("all members failed: %w", errors.Join(failed...)),
		}
	}

	return Fuse(c.meta.Name, lists, c.config.K, topK, c.fingerprint), nil
}

func (c *Composite) retrieveMember(ctx context.Context, m member, query Query, topK int, filters Filters) ([]Item, error) {
	if c.config.MemberTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.MemberTimeout)
		defer cancel()
	}

	ctx, span := c.tracer.Start(ctx, telemetry.SpanCompositeMember,
		trace.WithAttributes(
			attribute.String(telemetry.AttrRetrieverName, m.name),
			attribute.String(telemetry.AttrRetrieverKind, string(m.strategy.Metadata().Kind)),
		))
	defer span.End()

	// A member that ignores cancellation must not hold up the fan-out.
	type outcome struct {
		items []Item
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		items, err := m.strategy.Retrieve(ctx, query, topK, filters)
		done <- outcome{items: items, err: err}
	}()

	var (
		items []Item
		err   error
	)
	select {
	case o := <-done:
		items, err = o.items, o.err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return rank(slices.Clone(items), 0), nil
}

// Ping checks every member; in non-strict mode one healthy member is enough.
func (c *Composite) Ping(ctx context.Context) error {
	var failed []error
	for _, m := range c.members {
		p, ok := m.strategy.(Pinger)
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			failed = append(failed, &MemberError{Member: m.name, Err: err})
		}
	}
	if len(failed) == 0 {
		return nil
	}
	if c.config.Strict || len(failed) == len(c.members) {
		return errors.Join(failed...)
	}
	return nil
}

var _ Strategy = (*Composite)(nil)
