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

// Package tool implements the Tool Registry & Executor: it holds named
// callables, generates JSON-schema descriptors for LLM function calling,
// validates and coerces arguments, and dispatches calls with timeouts.
package tool

import (
	"context"
	"time"
)

// ParameterSchema describes one parameter of a tool's JSON schema.
type ParameterSchema struct {
	Name        string `json:"-"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"-"`
}

// Schema is the JSON-schema `parameters` object hector's functiontool and
// mcp-go both expect: {"type":"object","properties":{...},"required":[...]}.
type Schema struct {
	Type       string                     `json:"type"`
	Properties map[string]ParameterSchema `json:"properties"`
	Required   []string                   `json:"required"`
}

// Callable is the function signature every registered tool implements.
// Returning (nil, error) surfaces as a ToolFailure; the executor recovers
// from panics the same way.
type Callable func(ctx context.Context, args map[string]any) (any, error)

// Descriptor is a registered tool: its LLM-facing identity, its declared
// parameters, the callable, and scoping/timeout metadata.
//
// Description and every required parameter's Description are contractually
// required for tools intended for production (spec §4.1, §8 "Tool schema
// completeness") because LLM function-calling accuracy depends on them.
type Descriptor struct {
	Name        string
	Description string
	Parameters  []ParameterSchema

	Call Callable

	// Async marks a callable that should be awaited cooperatively rather
	// than run inline. The dispatch mechanics are identical either way in
	// Go - both paths call Call - and Registry.Invoke applies the same
	// timeout default to both; the flag is only recorded on the descriptor.
	Async bool

	// NeedsTaskScope, when true, permits the reserved task_id/agent_id
	// argument keys (spec §4.1 coercion rules).
	NeedsTaskScope bool

	// Timeout overrides the registry's default per-call timeout. Zero
	// means "use the registry default".
	Timeout time.Duration
}

// Schema renders the descriptor's function-calling schema.
func (d *Descriptor) Schema() Schema {
	props := make(map[string]ParameterSchema, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		props[p.Name] = p
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return Schema{Type: "object", Properties: props, Required: required}
}

// FunctionSchema is the full {"type":"function","function":{...}} envelope
// an LLM function-calling API expects (spec §6).
type FunctionSchema struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec is the "function" half of FunctionSchema.
type FunctionSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// ToFunctionSchema converts a Descriptor to the LLM-facing envelope.
func (d *Descriptor) ToFunctionSchema() FunctionSchema {
	return FunctionSchema{
		Type: "function",
		Function: FunctionSpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema(),
		},
	}
}

// Result is the outcome of an Invoke call.
type Result struct {
	Value any
	Err   error
}

// Ok reports whether the invocation succeeded.
func (r Result) Ok() bool { return r.Err == nil }
