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

// Package workflow runs short, ordered step sequences over immutable state.
//
// Each step receives the current State and returns the next State plus a
// Signal. The runner stops early on Halt or on the first error and never
// retries; a failing step's error carries the partial state reached so far.
//
// Example:
//
//	runner, _ := workflow.NewRunner("digest",
//	    workflow.NewStep("search", searchStep),
//	    workflow.NewStep("summarize", summarizeStep),
//	)
//	result, err := runner.Run(ctx, workflow.NewState(map[string]any{"query": q}))
package workflow

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
)

// Signal tells the runner whether to continue after a step.
type Signal int

const (
	Continue Signal = iota
	Halt
)

func (s Signal) String() string {
	if s == Halt {
		return "halt"
	}
	return "continue"
}

// Step is one named unit of work.
type Step interface {
	Name() string
	Run(ctx context.Context, state State) (State, Signal, error)
}

// StepFunc is the function form of a step.
type StepFunc func(ctx context.Context, state State) (State, Signal, error)

type funcStep struct {
	name string
	fn   StepFunc
}

// NewStep creates a step from a function.
func NewStep(name string, fn StepFunc) Step {
	return &funcStep{name: name, fn: fn}
}

func (s *funcStep) Name() string { return s.name }

func (s *funcStep) Run(ctx context.Context, state State) (State, Signal, error) {
	return s.fn(ctx, state)
}

// StepError reports a failed step together with the state at the point of
// failure.
type StepError struct {
	Workflow string
	Step     string
	Index    int
	State    State
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow %s: step %d (%s) failed: %v", e.Workflow, e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Event is emitted after each completed step.
type Event struct {
	Step   string
	Index  int
	State  State
	Signal Signal
}

// Result is the outcome of a full run.
type Result struct {
	State State

	// Executed lists the steps that completed, in order.
	Executed []string

	// Halted is true when a step returned Halt.
	Halted bool
}

// Runner executes an ordered list of steps.
type Runner struct {
	name  string
	steps []Step
}

// NewRunner creates a runner. Step names must be non-empty and unique.
func NewRunner(name string, steps ...Step) (*Runner, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("workflow %s: at least one step is required", name)
	}
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s == nil {
			return nil, fmt.Errorf("workflow %s: step %d is nil", name, i)
		}
		if s.Name() == "" {
			return nil, fmt.Errorf("workflow %s: step %d has no name", name, i)
		}
		if seen[s.Name()] {
			return nil, fmt.Errorf("workflow %s: duplicate step %q", name, s.Name())
		}
		seen[s.Name()] = true
	}
	return &Runner{name: name, steps: steps}, nil
}

// Name returns the workflow name.
func (r *Runner) Name() string { return r.name }

// Steps returns the step names in order.
func (r *Runner) Steps() []string {
	names := make([]string, len(r.steps))
	for i, s := range r.steps {
		names[i] = s.Name()
	}
	return names
}

// Events runs the steps lazily, yielding after each one. Iteration ends
// after a Halt, after the first error, or when the consumer stops.
func (r *Runner) Events(ctx context.Context, initial State) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		state := initial
		for i, step := range r.steps {
			if err := ctx.Err(); err != nil {
				yield(nil, &StepError{Workflow: r.name, Step: step.Name(), Index: i, State: state, Err: err})
				return
			}

			next, signal, err := step.Run(ctx, state)
			if err != nil {
				// A step may hand back the partial state it reached.
				if next.values != nil {
					state = next
				}
				slog.Debug("Workflow step failed", "workflow", r.name, "step", step.Name(), "error", err)
				yield(nil, &StepError{Workflow: r.name, Step: step.Name(), Index: i, State: state, Err: err})
				return
			}
			state = next

			if !yield(&Event{Step: step.Name(), Index: i, State: state, Signal: signal}, nil) {
				return
			}
			if signal == Halt {
				return
			}
		}
	}
}

// Run executes all steps and returns the final state.
func (r *Runner) Run(ctx context.Context, initial State) (*Result, error) {
	result := &Result{State: initial}
	for ev, err := range r.Events(ctx, initial) {
		if err != nil {
			return nil, err
		}
		result.State = ev.State
		result.Executed = append(result.Executed, ev.Step)
		result.Halted = ev.Signal == Halt
	}
	return result, nil
}
