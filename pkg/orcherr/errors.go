// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package orcherr defines the closed error taxonomy shared by every
// orchestration component. Errors are always structured values, never bare
// strings, so callers can classify and route them (retry, surface to the
// Brain, fail the task) without parsing messages.
package orcherr

import (
	"fmt"
	"time"
)

// Kind is a closed enum of error origins. New kinds are never added by
// components outside this package - they select from this list.
type Kind string

const (
	InvalidArguments       Kind = "invalid_arguments"
	ToolTimeout            Kind = "tool_timeout"
	ToolFailure            Kind = "tool_failure"
	MalformedToolArguments Kind = "malformed_tool_arguments"
	BrainTransient         Kind = "brain_transient"
	BrainPermanent         Kind = "brain_permanent"
	ToolLoop               Kind = "tool_loop"
	TurnTimeout            Kind = "turn_timeout"
	RoutingFailure         Kind = "routing_failure"
	SessionIOError         Kind = "session_io_error"
	MemoryError            Kind = "memory_error"
	ConfigError            Kind = "config_error"
	DuplicateTool          Kind = "duplicate_tool"
)

// Error is the structured error value every component returns.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	Message   string
	Err       error
	Timestamp time.Time
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a structured Error.
func New(kind Kind, component, operation, message string, err error) *Error {
	return &Error{
		Kind:      kind,
		Component: component,
		Operation: operation,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// KindOf extracts the Kind from any error produced by this package, or
// returns "" if err is nil or not one of ours.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the Task Executor should retry an operation
// that failed with this error, per spec §4.9's retry policy.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case BrainTransient:
		return true
	default:
		return false
	}
}

// IsFatal reports whether this error should transition a Task to failed.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case BrainPermanent, RoutingFailure:
		return true
	default:
		return false
	}
}
