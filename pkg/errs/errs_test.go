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

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", cause, ""},
		{"tool not found", &ToolNotFoundError{Name: "x"}, KindToolNotFound},
		{"wrapped backend", fmt.Errorf("outer: %w", &BackendUnavailableError{Retriever: "r", Err: cause}), KindBackendUnavailable},
		{"outermost wins", &ExecutionFailedError{Tool: "t", Err: &BackendUnavailableError{Err: cause}}, KindExecutionFailed},
		{"timeout", &ExecutionTimeoutError{Tool: "t"}, KindTimeout},
		{"invalid query", &InvalidQueryError{Retriever: "r", Err: cause}, KindSchemaValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestSentinels(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("retrieve: %w", &BackendUnavailableError{Retriever: "docs", Query: "q", Err: cause})

	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestIsShapeError(t *testing.T) {
	assert.True(t, IsShapeError(&ToolNotFoundError{Name: "a"}))
	assert.True(t, IsShapeError(&SchemaValidationError{Tool: "a", Err: errors.New("x")}))
	assert.True(t, IsShapeError(&SubtoolNotFoundError{Tool: "a", Subtool: "b"}))
	assert.True(t, IsShapeError(&InvalidQueryError{Retriever: "r", Err: errors.New("x")}))
	assert.ErrorIs(t, &InvalidQueryError{Retriever: "r"}, ErrSchemaValidation)
	assert.False(t, IsShapeError(&ExecutionTimeoutError{Tool: "a"}))
	assert.False(t, IsShapeError(&BackendUnavailableError{Err: errors.New("x")}))
	assert.False(t, IsShapeError(nil))
}

func TestVersionNotFoundMessage(t *testing.T) {
	err := &VersionNotFoundError{Name: "summarize", Version: "2.0.0", Available: []string{"1.0.0", "1.1.0"}}
	assert.Contains(t, err.Error(), `"2.0.0"`)
	assert.Contains(t, err.Error(), "1.0.0, 1.1.0")

	latest := &VersionNotFoundError{Name: "legacy", Available: []string{"beta"}}
	assert.Contains(t, latest.Error(), "no semantic version")
}
