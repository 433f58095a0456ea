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

package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/conductor/pkg/errs"
	"github.com/kadirpekel/conductor/pkg/registry"
	"github.com/kadirpekel/conductor/pkg/telemetry"
)

// entry is one registered (name, version).
type entry struct {
	tool      Tool
	meta      Metadata
	validator *Validator
}

// versionSet holds every version of one name. It is replaced, never
// mutated, on registration.
type versionSet struct {
	byVersion map[string]*entry
	latest    string
}

func (vs *versionSet) versions() []string {
	out := slices.Collect(maps.Keys(vs.byVersion))
	sortVersions(out)
	return out
}

// lookup finds version by exact string, then by semantic equivalence.
func (vs *versionSet) lookup(version string) (*entry, bool) {
	if e, ok := vs.byVersion[version]; ok {
		return e, true
	}
	want, ok := canonicalVersion(version)
	if !ok {
		return nil, false
	}
	for _, v := range vs.versions() {
		if c, ok := canonicalVersion(v); ok && c == want {
			return vs.byVersion[v], true
		}
	}
	return nil, false
}

// Registry holds versioned tools and wraps every execution with
// telemetry. Writes are serialized; reads never lock.
type Registry struct {
	tools          *registry.Registry[*versionSet]
	hook           telemetry.Hook
	tracer         trace.Tracer
	defaultTimeout time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithHook sets the observability hook invoked after every execution.
func WithHook(h telemetry.Hook) RegistryOption {
	return func(r *Registry) {
		r.hook = h
	}
}

// WithTracer overrides the tracer used for execution spans.
func WithTracer(t trace.Tracer) RegistryOption {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithDefaultTimeout bounds executions that carry no timeout of their own.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.defaultTimeout = d
	}
}

// NewRegistry creates an empty tool registry. Execution metrics are
// recorded by installing telemetry.MetricsHook through WithHook.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  registry.New[*versionSet]("tool"),
		tracer: telemetry.Tracer(telemetry.InstrumentationTools),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds t under (name, version). A duplicate pair returns
// *errs.DuplicateRegistrationError; a new version of an existing name
// updates the name's version index.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	meta := t.Metadata().normalized()
	if err := meta.Validate(); err != nil {
		return err
	}
	validator, err := CompileSchema(meta.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %s: input schema: %w", meta.Key(), err)
	}

	e := &entry{tool: t, meta: meta, validator: validator}
	err = r.tools.Upsert(meta.Name, func(current *versionSet, exists bool) (*versionSet, error) {
		next := &versionSet{byVersion: make(map[string]*entry)}
		if exists {
			if _, dup := current.byVersion[meta.Version]; dup {
				return nil, &errs.DuplicateRegistrationError{Registry: "tool", Key: meta.Key()}
			}
			maps.Copy(next.byVersion, current.byVersion)
		}
		next.byVersion[meta.Version] = e
		next.latest = latestVersion(slices.Collect(maps.Keys(next.byVersion)))
		return next, nil
	})
	if err != nil {
		return err
	}

	slog.Debug("Registered tool",
		"tool", meta.Name,
		"version", meta.Version,
		"backend_kind", meta.BackendKind)
	return nil
}

func (r *Registry) resolve(name, version string) (*entry, error) {
	vs, ok := r.tools.Get(name)
	if !ok {
		return nil, &errs.ToolNotFoundError{Name: name}
	}
	if version == "" {
		if vs.latest == "" {
			return nil, &errs.VersionNotFoundError{Name: name, Available: vs.versions()}
		}
		return vs.byVersion[vs.latest], nil
	}
	e, ok := vs.lookup(version)
	if !ok {
		return nil, &errs.VersionNotFoundError{Name: name, Version: version, Available: vs.versions()}
	}
	return e, nil
}

// Resolve returns the tool registered under name at version. An empty
// version selects the highest semantic version; versions that do not parse
// are only reachable by exact match.
func (r *Registry) Resolve(name, version string) (Tool, error) {
	e, err := r.resolve(name, version)
	if err != nil {
		return nil, err
	}
	return e.tool, nil
}

// GetMetadata returns a copy of the resolved tool's metadata.
func (r *Registry) GetMetadata(name, version string) (Metadata, bool) {
	e, err := r.resolve(name, version)
	if err != nil {
		return Metadata{}, false
	}
	return e.meta.Clone(), true
}

// Versions returns every registered version of name, newest first.
func (r *Registry) Versions(name string) []string {
	vs, ok := r.tools.Get(name)
	if !ok {
		return nil
	}
	return vs.versions()
}

// ListSubtools returns the subtool names of the resolved tool.
func (r *Registry) ListSubtools(name, version string) ([]string, error) {
	e, err := r.resolve(name, version)
	if err != nil {
		return nil, err
	}
	subtools := e.tool.ListSubtools()
	slices.Sort(subtools)
	return slices.Compact(subtools), nil
}

// ListFilter selects tools. Every non-zero field must match.
type ListFilter struct {
	BackendKind BackendKind
	OwnerDomain string

	// Tags must all be present on a tool.
	Tags []string

	// Version selects that exact version of each name. When empty each
	// name contributes only its latest version.
	Version string
}

// List returns the metadata of matching tools ordered by name.
func (r *Registry) List(filter ListFilter) []Metadata {
	var out []Metadata
	for _, vs := range r.tools.List() {
		var e *entry
		if filter.Version != "" {
			e, _ = vs.lookup(filter.Version)
		} else if vs.latest != "" {
			e = vs.byVersion[vs.latest]
		}
		if e == nil {
			continue
		}
		m := e.meta
		if filter.BackendKind != "" && m.BackendKind != filter.BackendKind {
			continue
		}
		if filter.OwnerDomain != "" && m.OwnerDomain != filter.OwnerDomain {
			continue
		}
		if !m.HasTags(filter.Tags) {
			continue
		}
		out = append(out, m.Clone())
	}
	return out
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	return r.tools.Names()
}

// ExecuteOption configures one execution.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	version string
	timeout time.Duration
}

// WithVersion pins the version to execute.
func WithVersion(v string) ExecuteOption {
	return func(o *executeOptions) { o.version = v }
}

// WithTimeout bounds the execution. It overrides the tool's own timeout
// and the registry default.
func WithTimeout(d time.Duration) ExecuteOption {
	return func(o *executeOptions) { o.timeout = d }
}

// Execute resolves the tool, validates args against its input schema and
// any ArgumentValidator rules, and runs it under the telemetry wrapper.
//
// Resolution and validation errors are returned before anything runs and
// are not reported to the hook. Once the tool starts, the hook is invoked
// exactly once, on success, failure or timeout, before Execute returns.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, opts ...ExecuteOption) ([]Item, error) {
	o := applyExecuteOptions(opts)

	e, err := r.resolve(name, o.version)
	if err != nil {
		return nil, err
	}
	if err := e.check("", args); err != nil {
		return nil, err
	}

	return r.run(ctx, e, "", args, o.timeout)
}

// ExecuteSubtool runs a subtool of the resolved tool under the same
// telemetry wrapper. Subtools that are undeclared or that the tool cannot
// route fail before execution, as do invalid arguments.
func (r *Registry) ExecuteSubtool(ctx context.Context, name, subtool string, args map[string]any, opts ...ExecuteOption) ([]Item, error) {
	o := applyExecuteOptions(opts)

	e, err := r.resolve(name, o.version)
	if err != nil {
		return nil, err
	}
	if !e.routes(subtool) {
		return nil, &errs.SubtoolNotFoundError{Tool: e.meta.Name, Subtool: subtool}
	}
	if err := e.check(subtool, args); err != nil {
		return nil, err
	}

	return r.run(ctx, e, subtool, args, o.timeout)
}

// routes reports whether subtool is both declared and routable.
func (e *entry) routes(subtool string) bool {
	if !slices.Contains(e.tool.ListSubtools(), subtool) {
		return false
	}
	router, ok := e.tool.(SubtoolRouter)
	return !ok || router.RoutesSubtool(subtool)
}

// check validates args against the input schema and the tool's own
// argument rules.
func (e *entry) check(subtool string, args map[string]any) error {
	if err := e.validator.Validate(args); err != nil {
		return &errs.SchemaValidationError{Tool: e.meta.Name, Version: e.meta.Version, Err: err}
	}
	av, ok := e.tool.(ArgumentValidator)
	if !ok {
		return nil
	}
	err := av.ValidateArgs(subtool, args)
	if err == nil {
		return nil
	}
	var sv *errs.SchemaValidationError
	if errors.As(err, &sv) {
		return err
	}
	return &errs.SchemaValidationError{Tool: e.meta.Name, Version: e.meta.Version, Err: err}
}

func applyExecuteOptions(opts []ExecuteOption) executeOptions {
	var o executeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (r *Registry) timeoutFor(e *entry, requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if tp, ok := e.tool.(TimeoutProvider); ok && tp.ExecutionTimeout() > 0 {
		return tp.ExecutionTimeout()
	}
	return r.defaultTimeout
}

func (r *Registry) run(ctx context.Context, e *entry, subtool string, args map[string]any, requested time.Duration) ([]Item, error) {
	rec := telemetry.ExecutionRecord{
		ID:              uuid.NewString(),
		ToolName:        e.meta.Name,
		VersionResolved: e.meta.Version,
		Subtool:         subtool,
		Arguments:       cloneMap(args),
		StartedAt:       time.Now(),
	}

	ctx, span := r.tracer.Start(ctx, telemetry.SpanToolExecute,
		trace.WithAttributes(
			attribute.String(telemetry.AttrToolName, e.meta.Name),
			attribute.String(telemetry.AttrToolVersion, e.meta.Version),
			attribute.String(telemetry.AttrToolBackendKind, string(e.meta.BackendKind)),
		))
	defer span.End()
	if subtool != "" {
		span.SetAttributes(attribute.String(telemetry.AttrToolSubtool, subtool))
	}

	timeout := r.timeoutFor(e, requested)
	execCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	items, err := invoke(execCtx, e.tool, subtool, args)
	err = classify(ctx, execCtx, e.meta, timeout, err)

	rec.LatencyMS = time.Since(rec.StartedAt).Milliseconds()
	if err != nil {
		items = nil
		kind := errs.KindOf(err)
		rec.ErrorKind = &kind
		rec.Err = err
		span.RecordError(err)
		span.SetAttributes(attribute.String(telemetry.AttrErrorKind, string(kind)))
		span.SetStatus(codes.Error, err.Error())
	} else {
		rec.Success = true
		rec.ResultCount = len(items)
		span.SetAttributes(attribute.Int(telemetry.AttrResultCount, len(items)))
		span.SetStatus(codes.Ok, "")
	}

	r.notify(ctx, e.tool, rec)
	return items, err
}

// notify calls the registry hook and then the tool's own hook.
func (r *Registry) notify(ctx context.Context, t Tool, rec telemetry.ExecutionRecord) {
	var own telemetry.Hook
	if hp, ok := t.(HookProvider); ok {
		own = hp.Hook()
	}
	if h := telemetry.Fanout(r.hook, own); h != nil {
		h.OnExecution(ctx, rec)
	}
}

// invoke runs the tool in its own goroutine so an expired context returns
// promptly even when the tool ignores cancellation. Panics are converted
// to errors.
func invoke(ctx context.Context, t Tool, subtool string, args map[string]any) ([]Item, error) {
	type outcome struct {
		items []Item
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: &PanicError{Value: p, Stack: debug.Stack()}}
			}
		}()
		var (
			items []Item
			err   error
		)
		if subtool != "" {
			items, err = t.ExecuteSubtool(ctx, subtool, args)
		} else {
			items, err = t.Execute(ctx, args)
		}
		done <- outcome{items: items, err: err}
	}()

	select {
	case o := <-done:
		return o.items, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// classify maps a raw execution error onto the taxonomy. Expired or
// cancelled contexts always win; errors that already carry a kind are kept;
// everything else becomes *errs.ExecutionFailedError.
func classify(callerCtx, execCtx context.Context, meta Metadata, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}

	if execCtx.Err() != nil {
		if errors.Is(callerCtx.Err(), context.Canceled) {
			return &errs.ExecutionTimeoutError{Tool: meta.Name, Version: meta.Version, Cancelled: true, Err: err}
		}
		return &errs.ExecutionTimeoutError{Tool: meta.Name, Version: meta.Version, Timeout: timeout, Err: err}
	}

	var kinded errs.Kinded
	if errors.As(err, &kinded) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.ExecutionTimeoutError{Tool: meta.Name, Version: meta.Version, Err: err}
	}
	return &errs.ExecutionFailedError{Tool: meta.Name, Version: meta.Version, Err: err}
}

// PanicError carries a recovered panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
