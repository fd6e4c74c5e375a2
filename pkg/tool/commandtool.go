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
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// CommandArgs is the fixed argument shape every command-type tool takes:
// a single free-form "input" string handed to the configured shell command
// as its final argument. This matches spec §6's tools[].type == "command"
// entries, which name an external program (Source) rather than a Go
// function - the tool surface a command can usefully expose to an LLM is
// "run this program on a string", not an arbitrary typed signature.
type CommandArgs struct {
	Input string `json:"input" jsonschema:"description=free-form input passed to the command"`
}

// NewCommandTool builds a Descriptor that shells out to command with args
// appended, then CommandArgs.Input as the final argument, on every
// invocation. Grounded on pkg/tool/functiontool.go's New[Args] pattern
// (typed Args, schema reflected once at registration) rather than hand-
// rolling argument decoding again.
func NewCommandTool(name, description, command string, args ...string) *Descriptor {
	return New(Config{Name: name, Description: description}, func(ctx context.Context, a CommandArgs) (any, error) {
		cmdArgs := append(append([]string{}, args...), a.Input)
		cmd := exec.CommandContext(ctx, command, cmdArgs...)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("command %q failed: %w: %s", command, err, stderr.String())
		}
		return stdout.String(), nil
	})
}
