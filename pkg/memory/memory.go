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

// Package memory implements the Memory Provider contract: task-scoped
// semantic memory storage with add/search/list/stats operations.
package memory

import (
	"context"
	"time"
)

// Kind is the closed set of content shapes a memory item can hold.
type Kind string

const (
	KindText          Kind = "text"
	KindJSON          Kind = "json"
	KindKeyValue      Kind = "key_value"
	KindVersionedText Kind = "versioned_text"
)

// Item is one stored memory (spec §3 MemoryItem).
type Item struct {
	MemoryID   string
	TaskID     string
	AgentName  string // empty means not attributed to a specific agent
	Content    any
	Kind       Kind
	Importance float64
	Metadata   map[string]any
	Timestamp  time.Time
}

// AddOptions carries the optional fields of add().
type AddOptions struct {
	AgentID    string
	Metadata   map[string]any
	Importance float64
}

// SearchOptions carries the optional fields of search().
type SearchOptions struct {
	Limit          int
	MinImportance  float64
	MetadataFilter map[string]any
}

// ListOptions carries the optional fields of list().
type ListOptions struct {
	AgentID string
	Limit   int
}

// Stats is the aggregation stats() returns.
type Stats struct {
	CountTotal    int
	CountByAgent  map[string]int
	AvgImportance float64
	Oldest        time.Time
	Newest        time.Time
}

// AddedHook is invoked after a successful add(), once the item is durable,
// so the caller (normally the Event Bus) can emit memory.added (spec §4.3
// "Auto-event hook").
type AddedHook func(item Item)

// Provider is the Memory Provider contract. Every method is scoped to a
// single task_id; a cross-task query is explicitly out of scope for the
// core (spec §4.3 "Scoping").
type Provider interface {
	Add(ctx context.Context, taskID string, content any, opts AddOptions) (string, error)
	Search(ctx context.Context, taskID, query string, opts SearchOptions) ([]Item, error)
	List(ctx context.Context, taskID string, opts ListOptions) ([]Item, error)
	Stats(ctx context.Context, taskID string) (Stats, error)
}

// computeStats is the shared aggregation helper every backend uses so
// count_by_agent/avg_importance/oldest/newest are computed identically
// regardless of storage, grounded on hector's pkg/memory/index.go
// aggregation helpers, generalized over Item instead of its pb.Message
// history type.
func computeStats(items []Item) Stats {
	st := Stats{CountByAgent: make(map[string]int)}
	if len(items) == 0 {
		return st
	}

	var importanceSum float64
	for _, it := range items {
		st.CountTotal++
		agent := it.AgentName
		if agent == "" {
			agent = "unassigned"
		}
		st.CountByAgent[agent]++
		importanceSum += it.Importance

		if st.Oldest.IsZero() || it.Timestamp.Before(st.Oldest) {
			st.Oldest = it.Timestamp
		}
		if st.Newest.IsZero() || it.Timestamp.After(st.Newest) {
			st.Newest = it.Timestamp
		}
	}
	st.AvgImportance = importanceSum / float64(st.CountTotal)
	return st
}
