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

package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func set(key string, value any) Step {
	return NewStep("set-"+key, func(_ context.Context, s State) (State, Signal, error) {
		return s.With(key, value), Continue, nil
	})
}

func TestState_Immutable(t *testing.T) {
	base := NewState(map[string]any{"a": 1})
	next := base.With("b", 2)

	assert.False(t, base.Has("b"))
	assert.True(t, next.Has("b"))
	assert.Equal(t, []string{"a", "b"}, next.Keys())

	m := next.Map()
	m["c"] = 3
	assert.False(t, next.Has("c"), "Map returns a copy")

	merged := next.Merge(map[string]any{"a": "x"})
	v, _ := merged.Get("a")
	assert.Equal(t, "x", v)
	v, _ = next.Get("a")
	assert.Equal(t, 1, v)

	assert.Equal(t, 1, next.Without("b").Len())
	assert.Equal(t, map[string]any{}, State{}.Map())
}

func TestRunner_RunsStepsInOrder(t *testing.T) {
	var order []string
	trace := func(name string) Step {
		return NewStep(name, func(_ context.Context, s State) (State, Signal, error) {
			order = append(order, name)
			return s.With(name, true), Continue, nil
		})
	}

	r, err := NewRunner("wf", trace("one"), trace("two"), trace("three"))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), NewState(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, order)
	assert.Equal(t, []string{"one", "two", "three"}, res.Executed)
	assert.False(t, res.Halted)
	assert.Equal(t, 3, res.State.Len())
}

func TestRunner_HaltStopsEarly(t *testing.T) {
	halt := NewStep("gate", func(_ context.Context, s State) (State, Signal, error) {
		return s.With("gated", true), Halt, nil
	})
	r, err := NewRunner("wf", set("a", 1), halt, set("never", 1))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), NewState(nil))
	require.NoError(t, err)
	assert.True(t, res.Halted)
	assert.Equal(t, []string{"set-a", "gate"}, res.Executed)
	assert.True(t, res.State.Has("gated"))
	assert.False(t, res.State.Has("never"))
}

func TestRunner_ErrorCarriesPartialState(t *testing.T) {
	cause := errors.New("backend down")
	fail := NewStep("fetch", func(_ context.Context, s State) (State, Signal, error) {
		return State{}, Continue, cause
	})
	r, err := NewRunner("wf", set("a", 1), fail, set("b", 2))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), NewState(map[string]any{"query": "q"}))
	assert.Nil(t, res)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fetch", se.Step)
	assert.Equal(t, 1, se.Index)
	assert.Equal(t, []string{"a", "query"}, se.State.Keys())
	assert.ErrorIs(t, err, cause)
}

func TestRunner_StepMayReturnPartialState(t *testing.T) {
	fail := NewStep("fetch", func(_ context.Context, s State) (State, Signal, error) {
		return s.With("half", true), Continue, errors.New("boom")
	})
	r, err := NewRunner("wf", fail)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), NewState(nil))
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.State.Has("half"))
}

func TestRunner_StopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancelling := NewStep("cancel", func(_ context.Context, s State) (State, Signal, error) {
		cancel()
		return s, Continue, nil
	})
	r, err := NewRunner("wf", cancelling, set("late", 1))
	require.NoError(t, err)

	_, err = r.Run(ctx, NewState(nil))
	assert.ErrorIs(t, err, context.Canceled)
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "set-late", se.Step)
}

func TestRunner_Events(t *testing.T) {
	r, err := NewRunner("wf", set("a", 1), set("b", 2))
	require.NoError(t, err)

	var steps []string
	for ev, err := range r.Events(context.Background(), NewState(nil)) {
		require.NoError(t, err)
		steps = append(steps, ev.Step)
		break
	}
	assert.Equal(t, []string{"set-a"}, steps)
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner("wf")
	assert.Error(t, err)

	_, err = NewRunner("wf", set("a", 1), set("a", 2))
	assert.Error(t, err)

	_, err = NewRunner("wf", NewStep("", nil))
	assert.Error(t, err)

	r, err := NewRunner("wf", set("a", 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"set-a"}, r.Steps())
	assert.Equal(t, "halt", Halt.String())
}
