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

package memory

import "time"

// record is FileProvider's on-disk shape for one memory item, one per
// line of a task's memories.jsonl file.
type record struct {
	MemoryID   string         `json:"memory_id"`
	TaskID     string         `json:"task_id"`
	AgentName  string         `json:"agent_name,omitempty"`
	Content    any            `json:"content"`
	Kind       Kind           `json:"kind"`
	Importance float64        `json:"importance"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (r record) toItem() Item {
	return Item{
		MemoryID:   r.MemoryID,
		TaskID:     r.TaskID,
		AgentName:  r.AgentName,
		Content:    r.Content,
		Kind:       r.Kind,
		Importance: r.Importance,
		Metadata:   r.Metadata,
		Timestamp:  r.Timestamp,
	}
}
