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

package brain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// openCall accumulates one tool call's name/arguments across however many
// deltas a provider splits it into.
type openCall struct {
	id   string
	name strings.Builder
	args strings.Builder
}

// Assembler reconstructs complete tool calls from a Brain's delta stream.
// Providers emit tool-call chunks in one of two patterns (spec §4.2):
//
//  1. every chunk carries the call_id alongside its delta, or
//  2. only the chunk that opens a call carries the call_id; every
//     following chunk until the next open carries only an argument delta
//     and is attributed to the most recently opened call.
//
// Assembler handles both without the caller needing to know which pattern
// the provider in use follows - grounded on hector's streamingState
// (functionCallID / functionCallArgs strings.Builder) in pkg/llms/openai.go.
type Assembler struct {
	order   []string
	calls   map[string]*openCall
	current string // most recently opened call_id, for pattern 2
}

// NewAssembler creates an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{calls: make(map[string]*openCall)}
}

// Add folds one ToolCallDelta into the assembler's running state.
func (a *Assembler) Add(d ToolCallDelta) {
	id := d.CallID
	if id == "" {
		// Pattern 2: attribute to whatever call is currently open.
		id = a.current
	}
	if id == "" {
		// No call has ever been opened and this chunk carries no id -
		// nothing to attribute the delta to. Silently dropped; a provider
		// that does this for a real tool call will fail JSON parsing at
		// Finish and surface as MalformedToolArguments there.
		return
	}

	oc, exists := a.calls[id]
	if !exists {
		oc = &openCall{id: id}
		a.calls[id] = oc
		a.order = append(a.order, id)
	}
	a.current = id

	if d.NameDelta != "" {
		oc.name.WriteString(d.NameDelta)
	}
	if d.ArgumentDelta != "" {
		oc.args.WriteString(d.ArgumentDelta)
	}
}

// Assembled is one finished tool call. Err is set (and Call's fields may
// be incomplete) when the accumulated argument string failed to parse as
// JSON - the caller is expected to record a failed tool_result for this
// call specifically rather than discard the whole batch (spec §4.2).
type Assembled struct {
	Call ToolCall
	Err  error
}

// Finish renders every assembled call, parsing each one's accumulated
// argument string independently so one malformed call does not sink its
// siblings.
func (a *Assembler) Finish() []Assembled {
	out := make([]Assembled, 0, len(a.order))
	for _, id := range a.order {
		oc := a.calls[id]
		argStr := oc.args.String()
		if argStr == "" {
			argStr = "{}"
		}

		call := ToolCall{ID: id, Name: oc.name.String(), Arguments: argStr}

		var parsed map[string]any
		if err := json.Unmarshal([]byte(argStr), &parsed); err != nil {
			out = append(out, Assembled{Call: call, Err: orcherr.New(orcherr.MalformedToolArguments, "brain", "assemble",
				fmt.Sprintf("tool call %q (%s) has unparsable arguments", id, oc.name.String()), err)})
			continue
		}
		out = append(out, Assembled{Call: call})
	}
	return out
}

// Reset clears the assembler for reuse across tool-call rounds within the
// same turn (spec §4.4 step 5's "return to step 3").
func (a *Assembler) Reset() {
	a.order = nil
	a.calls = make(map[string]*openCall)
	a.current = ""
}
