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

package main

import (
	"fmt"

	"github.com/kadirpekel/conductor/pkg/builder"
	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/event"
	"github.com/kadirpekel/conductor/pkg/executor"
	"github.com/kadirpekel/conductor/pkg/session"
)

// newExecutor loads configPath, builds the team it describes, and returns
// an Executor bound to a FileStore rooted at sessionDir. Every CLI command
// that touches a live task goes through this one assembly path so a
// loaded config's agents/tools/memory/events are always wired the same
// way builder.Build describes.
func newExecutor(configPath, sessionDir string, maxRounds int) (*executor.Executor, error) {
	loaded, err := config.Load(configPath)
	if err != nil {
		return nil, userError(fmt.Errorf("load config: %w", err))
	}
	if maxRounds > 0 {
		loaded.Team.MaxRounds = maxRounds
	}

	bus := event.New(event.Config{Source: "conductor"})

	teamCfg, err := builder.Build(loaded.Team, builder.Options{Events: bus})
	if err != nil {
		return nil, userError(fmt.Errorf("build team %q: %w", loaded.Team.Name, err))
	}

	store := session.NewFileStore(sessionDir)

	exec, err := executor.New(executor.Config{Team: teamCfg, Store: store, Events: bus})
	if err != nil {
		return nil, userError(fmt.Errorf("construct executor: %w", err))
	}
	return exec, nil
}
