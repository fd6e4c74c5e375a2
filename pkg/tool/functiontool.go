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
	"reflect"

	"github.com/invopop/jsonschema"
)

// Func is a typed tool body: callers write ordinary Go functions over a
// concrete Args struct instead of a map[string]any, and New generates the
// boilerplate Descriptor (schema reflection, decoding, invocation) around
// it, the same division of labor as hector's functiontool.New[Args any].
type Func[Args any] func(ctx context.Context, args Args) (any, error)

// Config supplies the metadata New cannot infer by reflection alone.
type Config struct {
	Name        string
	Description string
	Async       bool
	NeedsTaskScope bool
}

// New builds a Descriptor from a typed function. The parameter schema is
// derived from Args' struct tags via invopop/jsonschema, the same schema
// library hector's functiontool package reaches for, and each call decodes
// the normalized arguments map into a fresh Args value with mapstructure
// before invoking fn.
func New[Args any](cfg Config, fn Func[Args]) *Descriptor {
	var zero Args
	params := parametersFromStruct(zero)

	call := func(ctx context.Context, args map[string]any) (any, error) {
		var typed Args
		if err := Decode(args, &typed); err != nil {
			return nil, err
		}
		return fn(ctx, typed)
	}

	return &Descriptor{
		Name:           cfg.Name,
		Description:    cfg.Description,
		Parameters:     params,
		Call:           call,
		Async:          cfg.Async,
		NeedsTaskScope: cfg.NeedsTaskScope,
	}
}

// parametersFromStruct reflects Args' JSON schema into the flat
// ParameterSchema list Descriptor.Schema expects.
func parametersFromStruct(v any) []ParameterSchema {
	t := reflect.TypeOf(v)
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	r := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := r.Reflect(v)

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	params := make([]ParameterSchema, 0, schema.Properties.Len())
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name := pair.Key
		prop := pair.Value
		params = append(params, ParameterSchema{
			Name:        name,
			Type:        prop.Type,
			Description: prop.Description,
			Required:    required[name],
		})
	}
	return params
}
