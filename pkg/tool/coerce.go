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
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// reservedKeys are argument names a tool only receives when it opts in via
// NeedsTaskScope (spec §4.1 coercion rules).
var reservedKeys = map[string]bool{
	"task_id":  true,
	"agent_id": true,
}

// normalizeArguments accepts the several shapes real LLM providers emit for
// function-call arguments and flattens them to a single map:
//
//   - a direct flat map: {"city": "Paris"}
//   - a nested "args" object: {"args": {"city": "Paris"}}
//   - a nested "kwargs" object: {"kwargs": {"city": "Paris"}}
//   - combined positional/keyword: {"args": ["Paris"], "kwargs": {...}} is
//     rejected - the registry has no parameter-position information to map
//     positional args onto, so this shape resolves to MalformedToolArguments.
func normalizeArguments(raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}

	if kwargs, hasKwargs := raw["kwargs"]; hasKwargs {
		kwargsMap, ok := kwargs.(map[string]any)
		if !ok {
			return nil, orcherr.New(orcherr.MalformedToolArguments, "tool", "normalize",
				`"kwargs" must be an object`, nil)
		}
		if args, hasArgs := raw["args"]; hasArgs {
			if list, ok := args.([]any); ok && len(list) > 0 {
				return nil, orcherr.New(orcherr.MalformedToolArguments, "tool", "normalize",
					"positional \"args\" alongside \"kwargs\" cannot be resolved without parameter order", nil)
			}
		}
		return kwargsMap, nil
	}

	if args, hasArgs := raw["args"]; hasArgs && len(raw) == 1 {
		if argsMap, ok := args.(map[string]any); ok {
			return argsMap, nil
		}
		return nil, orcherr.New(orcherr.MalformedToolArguments, "tool", "normalize",
			`"args" must be an object when used alone`, nil)
	}

	return raw, nil
}

// coerceArguments validates the normalized map against d's declared
// parameters, strips/permits reserved scope keys, and injects scope values
// for tools that declared NeedsTaskScope. Values are passed through
// unconverted: they are not converted to the declared ParameterSchema types.
// Tools built with New (function and command tools) decode the map into
// their Args struct with Decode, which accepts numeric strings and similar
// looseness; a hand-built Descriptor receives the values as the LLM sent them.
func coerceArguments(d *Descriptor, args map[string]any, scope Context) (map[string]any, error) {
	declared := make(map[string]ParameterSchema, len(d.Parameters))
	for _, p := range d.Parameters {
		declared[p.Name] = p
	}

	out := make(map[string]any, len(args))
	for key, val := range args {
		if reservedKeys[key] {
			if !d.NeedsTaskScope {
				return nil, orcherr.New(orcherr.InvalidArguments, "tool", "coerce",
					fmt.Sprintf("tool %q does not accept reserved argument %q", d.Name, key), nil)
			}
			continue
		}
		if _, known := declared[key]; !known {
			return nil, orcherr.New(orcherr.InvalidArguments, "tool", "coerce",
				fmt.Sprintf("tool %q received unknown argument %q", d.Name, key), nil)
		}
		out[key] = val
	}

	for _, p := range d.Parameters {
		if p.Required {
			if _, ok := out[p.Name]; !ok {
				return nil, orcherr.New(orcherr.InvalidArguments, "tool", "coerce",
					fmt.Sprintf("tool %q missing required argument %q", d.Name, p.Name), nil)
			}
		}
	}

	if d.NeedsTaskScope {
		out["task_id"] = scope.TaskID
		out["agent_id"] = scope.AgentID
	}

	return out, nil
}

// Decode coerces a normalized arguments map into a typed struct using
// mapstructure, for tools registered via a Go function wrapper (see
// functiontool.go). WeaklyTypedInput tolerates the numeric-string and
// bool-string looseness common in LLM-produced JSON.
func Decode(args map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
		TagName:          "json",
	})
	if err != nil {
		return orcherr.New(orcherr.ToolFailure, "tool", "decode", "failed to build argument decoder", err)
	}
	if err := dec.Decode(args); err != nil {
		return orcherr.New(orcherr.MalformedToolArguments, "tool", "decode", "arguments do not match declared schema", err)
	}
	return nil
}
