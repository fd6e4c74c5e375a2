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

// Package event implements the Event Bus: in-process pub/sub decoupling
// producers (Task Executor, Memory Provider) from observers (monitors,
// UIs, persistence hooks).
package event

import "time"

// Type is the closed set of event types the bus carries (spec §4.7).
type Type string

const (
	TaskCreated       Type = "task.created"
	TaskStarted       Type = "task.started"
	TaskStepCompleted Type = "task.step_completed"
	TaskPaused        Type = "task.paused"
	TaskResumed       Type = "task.resumed"
	TaskCompleted     Type = "task.completed"
	TaskFailed        Type = "task.failed"
	TaskStopped       Type = "task.stopped"

	AgentTurnStarted  Type = "agent.turn_started"
	AgentTurnFinished Type = "agent.turn_finished"

	ToolInvoked   Type = "tool.invoked"
	ToolSucceeded Type = "tool.succeeded"
	ToolFailed    Type = "tool.failed"

	MemoryAdded    Type = "memory.added"
	MemorySearched Type = "memory.searched"

	HandoffRouted Type = "handoff.routed"
)

// Event is one item on the bus (spec §3 Event entity).
type Event struct {
	EventID   string
	Type      Type
	Source    string
	TaskID    string
	Timestamp time.Time
	Payload   map[string]any
}
