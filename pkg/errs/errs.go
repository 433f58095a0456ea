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

// Package errs defines the error taxonomy surfaced by the tool and retriever
// registries.
//
// Every error returned from an execute or retrieve call is one of the types
// declared here (possibly wrapping a lower-level cause), so gateways can map
// failures to stable response codes with errors.As or KindOf.
package errs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the stable, machine-readable name of an error class.
type Kind string

const (
	KindToolNotFound          Kind = "tool_not_found"
	KindVersionNotFound       Kind = "version_not_found"
	KindDuplicateRegistration Kind = "duplicate_registration"
	KindRetrieverNotFound     Kind = "retriever_not_found"
	KindSchemaValidation      Kind = "schema_validation"
	KindBackendUnavailable    Kind = "backend_unavailable"
	KindTimeout               Kind = "timeout"
	KindSubtoolNotFound       Kind = "subtool_not_found"
	KindExecutionFailed       Kind = "execution_failed"
)

// Sentinels for errors.Is matching on kind alone.
var (
	ErrToolNotFound          = errors.New(string(KindToolNotFound))
	ErrVersionNotFound       = errors.New(string(KindVersionNotFound))
	ErrDuplicateRegistration = errors.New(string(KindDuplicateRegistration))
	ErrRetrieverNotFound     = errors.New(string(KindRetrieverNotFound))
	ErrSchemaValidation      = errors.New(string(KindSchemaValidation))
	ErrBackendUnavailable    = errors.New(string(KindBackendUnavailable))
	ErrTimeout               = errors.New(string(KindTimeout))
	ErrSubtoolNotFound       = errors.New(string(KindSubtoolNotFound))
	ErrExecutionFailed       = errors.New(string(KindExecutionFailed))
)

// Kinded is implemented by every taxonomy error.
type Kinded interface {
	error
	Kind() Kind
}

// KindOf returns the kind of the outermost taxonomy error in err's chain.
// It returns the empty Kind for nil or unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

// IsShapeError reports whether err is a registry-shape error, one that is
// detected before any execution is attempted.
func IsShapeError(err error) bool {
	switch KindOf(err) {
	case KindToolNotFound, KindVersionNotFound, KindDuplicateRegistration,
		KindRetrieverNotFound, KindSchemaValidation, KindSubtoolNotFound:
		return true
	}
	return false
}

// ToolNotFoundError is returned when no tool is registered under a name.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

func (e *ToolNotFoundError) Kind() Kind { return KindToolNotFound }

func (e *ToolNotFoundError) Is(target error) bool { return target == ErrToolNotFound }

// VersionNotFoundError is returned when a name is known but the requested
// version is not. An empty Version means no resolvable latest version exists.
type VersionNotFoundError struct {
	Name      string
	Version   string
	Available []string
}

func (e *VersionNotFoundError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("tool %q has no semantic version to resolve as latest (registered: %s)",
			e.Name, strings.Join(e.Available, ", "))
	}
	return fmt.Sprintf("tool %q has no version %q (registered: %s)",
		e.Name, e.Version, strings.Join(e.Available, ", "))
}

func (e *VersionNotFoundError) Kind() Kind { return KindVersionNotFound }

func (e *VersionNotFoundError) Is(target error) bool { return target == ErrVersionNotFound }

// DuplicateRegistrationError is returned when a key is already registered.
type DuplicateRegistrationError struct {
	// Registry names the registry, e.g. "tool" or "retriever".
	Registry string
	Key      string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("%s %q is already registered", e.Registry, e.Key)
}

func (e *DuplicateRegistrationError) Kind() Kind { return KindDuplicateRegistration }

func (e *DuplicateRegistrationError) Is(target error) bool {
	return target == ErrDuplicateRegistration
}

// RetrieverNotFoundError is returned when no retriever has the given name.
type RetrieverNotFoundError struct {
	Name string
}

func (e *RetrieverNotFoundError) Error() string {
	return fmt.Sprintf("retriever %q not found", e.Name)
}

func (e *RetrieverNotFoundError) Kind() Kind { return KindRetrieverNotFound }

func (e *RetrieverNotFoundError) Is(target error) bool { return target == ErrRetrieverNotFound }

// SchemaValidationError is returned when arguments do not match a tool's
// input schema.
type SchemaValidationError struct {
	Tool    string
	Version string
	Err     error
}

func (e *SchemaValidationError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("invalid arguments for tool %s@%s: %v", e.Tool, e.Version, e.Err)
	}
	return fmt.Sprintf("invalid arguments for tool %s: %v", e.Tool, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

func (e *SchemaValidationError) Kind() Kind { return KindSchemaValidation }

func (e *SchemaValidationError) Is(target error) bool { return target == ErrSchemaValidation }

// InvalidQueryError is returned when a retrieval request cannot be turned
// into a backend query, such as a non-positive top_k or an unsupported
// filter. It shares the schema_validation kind; no backend is contacted.
type InvalidQueryError struct {
	Retriever string
	Err       error
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query for retriever %q: %v", e.Retriever, e.Err)
}

func (e *InvalidQueryError) Unwrap() error { return e.Err }

func (e *InvalidQueryError) Kind() Kind { return KindSchemaValidation }

func (e *InvalidQueryError) Is(target error) bool { return target == ErrSchemaValidation }

// BackendUnavailableError wraps a backend failure with the strategy and query
// that triggered it.
type BackendUnavailableError struct {
	Retriever string
	Query     string
	Err       error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("retriever %q unavailable for query %q: %v", e.Retriever, e.Query, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

func (e *BackendUnavailableError) Kind() Kind { return KindBackendUnavailable }

func (e *BackendUnavailableError) Is(target error) bool { return target == ErrBackendUnavailable }

// ExecutionTimeoutError is returned when an execution exceeds its deadline
// or is cancelled by the caller.
type ExecutionTimeoutError struct {
	Tool      string
	Version   string
	Timeout   time.Duration
	Cancelled bool
	Err       error
}

func (e *ExecutionTimeoutError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("tool %s@%s cancelled", e.Tool, e.Version)
	}
	if e.Timeout > 0 {
		return fmt.Sprintf("tool %s@%s timed out after %s", e.Tool, e.Version, e.Timeout)
	}
	return fmt.Sprintf("tool %s@%s exceeded its deadline", e.Tool, e.Version)
}

func (e *ExecutionTimeoutError) Unwrap() error { return e.Err }

func (e *ExecutionTimeoutError) Kind() Kind { return KindTimeout }

func (e *ExecutionTimeoutError) Is(target error) bool { return target == ErrTimeout }

// SubtoolNotFoundError is returned when a tool does not expose a subtool.
type SubtoolNotFoundError struct {
	Tool    string
	Subtool string
}

func (e *SubtoolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q has no subtool %q", e.Tool, e.Subtool)
}

func (e *SubtoolNotFoundError) Kind() Kind { return KindSubtoolNotFound }

func (e *SubtoolNotFoundError) Is(target error) bool { return target == ErrSubtoolNotFound }

// ExecutionFailedError classifies tool failures that are neither backend
// unavailability nor timeouts, such as a workflow step error or a panic.
type ExecutionFailedError struct {
	Tool    string
	Version string
	Err     error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("tool %s@%s failed: %v", e.Tool, e.Version, e.Err)
}

func (e *ExecutionFailedError) Unwrap() error { return e.Err }

func (e *ExecutionFailedError) Kind() Kind { return KindExecutionFailed }

func (e *ExecutionFailedError) Is(target error) bool { return target == ErrExecutionFailed }
