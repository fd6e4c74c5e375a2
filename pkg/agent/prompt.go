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

package agent

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// placeholderRegex matches {variable} and {variable?} placeholders.
var placeholderRegex = regexp.MustCompile(`{+[^{}]*}+`)

// RenderPrompt resolves {variable} placeholders in tmpl against vars.
// A trailing '?' marks a placeholder optional ({name?} resolves to "" when
// absent from vars). In strict mode a required placeholder missing from
// vars returns a ConfigError; in lenient mode every missing placeholder
// resolves to "" regardless of the '?' marker (spec §4.4 "prompt
// rendering with strict/lenient variable resolution").
func RenderPrompt(tmpl string, vars map[string]string, strict bool) (string, error) {
	if tmpl == "" {
		return "", nil
	}

	var out strings.Builder
	last := 0
	for _, idx := range placeholderRegex.FindAllStringIndex(tmpl, -1) {
		start, end := idx[0], idx[1]
		out.WriteString(tmpl[last:start])

		replacement, err := resolvePlaceholder(tmpl[start:end], vars, strict)
		if err != nil {
			return "", err
		}
		out.WriteString(replacement)
		last = end
	}
	out.WriteString(tmpl[last:])
	return out.String(), nil
}

func resolvePlaceholder(match string, vars map[string]string, strict bool) (string, error) {
	name := strings.TrimSpace(strings.Trim(match, "{}"))
	optional := strings.HasSuffix(name, "?")
	name = strings.TrimSuffix(name, "?")

	if !isIdentifier(name) {
		// Not a valid placeholder name - treat the braces as literal text.
		return match, nil
	}

	v, ok := vars[name]
	if !ok {
		if optional || !strict {
			return "", nil
		}
		return "", orcherr.New(orcherr.ConfigError, "agent", "render_prompt",
			fmt.Sprintf("required prompt variable %q was not provided", name), nil)
	}
	return v, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
		} else if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
