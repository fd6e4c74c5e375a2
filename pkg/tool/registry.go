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

package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// DefaultTimeout bounds a single tool call when the descriptor does not
// specify one.
const DefaultTimeout = 30 * time.Second

// Context carries the task/agent scope passed to tools declared
// NeedsTaskScope (spec §4.1).
type Context struct {
	TaskID  string
	AgentID string
}

// Registry holds named tool Descriptors and dispatches calls.
//
// Registries are passed explicitly into Team construction rather than kept
// as a process-wide singleton (spec §9 "Global tool registry singletons") -
// tests and concurrent tasks can each hold an isolated Registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Descriptor)}
}

// Register adds a Descriptor. Re-registering the same name fails with
// DuplicateTool unless overwrite is true.
func (r *Registry) Register(d *Descriptor, overwrite bool) error {
	if d == nil || d.Name == "" {
		return orcherr.New(orcherr.InvalidArguments, "tool", "register", "descriptor must have a non-empty name", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[d.Name]; exists && !overwrite {
		return orcherr.New(orcherr.DuplicateTool, "tool", "register",
			fmt.Sprintf("tool %q is already registered", d.Name), nil)
	}

	if d.Description == "" {
		slog.Warn("tool registered without a description", "tool", d.Name)
	}
	for _, p := range d.Parameters {
		if p.Required && p.Description == "" {
			slog.Warn("tool registered with an undocumented required parameter", "tool", d.Name, "parameter", p.Name)
		}
	}

	r.tools[d.Name] = d
	return nil
}

// List enumerates registered tool names, sorted for deterministic output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the Descriptor for name, or false if unregistered.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Schemas produces the ordered function-calling schemas for the named
// tools. Unknown names in allowlist are skipped with a warning (tolerant,
// matching Team's tolerant loading policy in spec §4.5) rather than failing
// the whole call.
func (r *Registry) Schemas(allowlist []string) []FunctionSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]FunctionSchema, 0, len(allowlist))
	for _, name := range allowlist {
		d, ok := r.tools[name]
		if !ok {
			slog.Warn("tool in allowlist is not registered", "tool", name)
			continue
		}
		out = append(out, d.ToFunctionSchema())
	}
	return out
}

// Invoke normalizes arguments, coerces them against the descriptor's
// declared parameters, and dispatches the call with a timeout. Sync and
// Async callables are dispatched the same way: on a goroutine awaited under
// Descriptor.Timeout, or DefaultTimeout when that is zero.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs map[string]any, scope Context) Result {
	d, ok := r.Get(name)
	if !ok {
		return Result{Err: orcherr.New(orcherr.InvalidArguments, "tool", "invoke",
			fmt.Sprintf("tool %q is not registered", name), nil)}
	}

	args, err := normalizeArguments(rawArgs)
	if err != nil {
		return Result{Err: err}
	}

	args, err = coerceArguments(d, args, scope)
	if err != nil {
		return Result{Err: err}
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: orcherr.New(orcherr.ToolFailure, "tool", "invoke",
					fmt.Sprintf("tool %q panicked: %v", name, rec), nil)}
			}
		}()
		val, callErr := d.Call(callCtx, args)
		if callErr != nil {
			callErr = orcherr.New(orcherr.ToolFailure, "tool", "invoke", callErr.Error(), callErr)
		}
		done <- outcome{val: val, err: callErr}
	}()

	select {
	case o := <-done:
		return Result{Value: o.val, Err: o.err}
	case <-callCtx.Done():
		return Result{Err: orcherr.New(orcherr.ToolTimeout, "tool", "invoke",
			fmt.Sprintf("tool %q timed out after %s", name, timeout), callCtx.Err())}
	}
}
