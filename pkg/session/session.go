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

// Package session implements the Task Session Store (spec §4.8): durable
// storage of task identity, progress, and transcript across process
// restarts. The Store contract is backend-agnostic; File, SQL, and KV
// implementations live alongside it in this package.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"github.com/kadirpekel/conductor/pkg/brain"
)

// Status mirrors the Task Executor's state machine (spec §4.9); a session
// record's Status is the last state the executor reported.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// ErrNotFound is returned by Get/Update/Delete when task_id doesn't exist.
var ErrNotFound = errors.New("session not found")

// Record is a session's fixed metadata document (spec §4.8).
type Record struct {
	TaskID             string
	TeamName           string
	Status             Status
	Prompt             string // the task's initial input; anchors find_continuable
	CurrentAgent       string
	RoundCount         int
	ConfigSnapshotHash string
	Error              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Step is one entry in a session's append-only transcript log.
type Step struct {
	Round     int
	Agent     string
	Messages  []brain.Message
	Timestamp time.Time
}

// Patch merges changed fields into an existing Record; nil fields are left
// untouched (spec §4.8: "merges changed fields; atomic per call").
type Patch struct {
	Status       *Status
	CurrentAgent *string
	RoundCount   *int
	Error        *string
}

// Apply merges p into r, returning the updated Record. UpdatedAt is always
// refreshed.
func (p Patch) Apply(r Record) Record {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.CurrentAgent != nil {
		r.CurrentAgent = *p.CurrentAgent
	}
	if p.RoundCount != nil {
		r.RoundCount = *p.RoundCount
	}
	if p.Error != nil {
		r.Error = *p.Error
	}
	r.UpdatedAt = time.Now()
	return r
}

// ListFilter narrows List to a status and/or a page.
type ListFilter struct {
	Status Status // zero value matches every status
	Limit  int
	Offset int
}

// Store is the Task Session Store contract (spec §4.8), implemented by
// File, SQL, and KV backends in this package.
type Store interface {
	// Create persists a new session and returns its task_id.
	Create(ctx context.Context, rec Record) (string, error)

	// Update atomically merges patch into the stored record.
	Update(ctx context.Context, taskID string, patch Patch) error

	// AppendStep appends one entry to the task's transcript log.
	AppendStep(ctx context.Context, taskID string, step Step) error

	// Get returns a session's metadata and full transcript.
	Get(ctx context.Context, taskID string) (Record, []Step, error)

	// List returns sessions matching filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]Record, error)

	// Delete removes a session and its transcript.
	Delete(ctx context.Context, taskID string) error

	// FindContinuable best-effort matches description against persisted
	// sessions in created, running or paused states (spec §4.8).
	FindContinuable(ctx context.Context, description string) (Record, bool, error)
}

// ConfigSnapshotHash hashes a Team config's canonical bytes (e.g. its
// loaded YAML) so a resumed session can detect config drift (spec §4.8).
func ConfigSnapshotHash(configBytes []byte) string {
	sum := sha256.Sum256(configBytes)
	return hex.EncodeToString(sum[:])
}

// isContinuable reports whether find_continuable considers a session in
// status s: created, running or paused, i.e. every non-terminal state.
func isContinuable(s Status) bool {
	return s == StatusPaused || s == StatusRunning || s == StatusCreated
}

// bestMatch scores candidates' Prompt against description via Jaccard
// token overlap and returns the highest-scoring one, most-recently-updated
// first on ties. Shared by every backend so ranking behavior is identical
// regardless of storage technology.
func bestMatch(description string, candidates []Record) (Record, bool) {
	type scored struct {
		rec   Record
		score float64
	}
	queryTokens := tokenize(description)

	var ranked []scored
	for _, rec := range candidates {
		if !isContinuable(rec.Status) {
			continue
		}
		score := jaccard(queryTokens, tokenize(rec.Prompt))
		ranked = append(ranked, scored{rec: rec, score: score})
	}
	if len(ranked) == 0 {
		return Record{}, false
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].rec.UpdatedAt.After(ranked[j].rec.UpdatedAt)
	})

	if ranked[0].score == 0 {
		return Record{}, false
	}
	return ranked[0].rec, true
}

// tokenize and jaccard duplicate pkg/memory/fileprovider.go's technique
// (unexported there); the Task Session Store has no dependency on the
// Memory Provider, so the ~20 lines are repeated rather than shared.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens[string(cur)] = true
			cur = cur[:0]
		}
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			cur = append(cur, r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
