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

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// FileProvider is the default Memory Provider: an append-only JSON-lines
// file per task, grounded on the metadata.json + steps.jsonl convention
// the Task Session Store uses (spec §4.8) - memories get the same
// durable-append shape, one file named memories.jsonl per task directory.
//
// Search ranks by Jaccard token overlap between the query and each item's
// text content rather than true semantic similarity: the file backend has
// no embedding model available, and deterministic overlap scoring still
// satisfies spec §4.3's "search results are deterministic given identical
// backend state and query" guarantee. Use ChromemProvider when true
// semantic search matters.
type FileProvider struct {
	baseDir string
	mu      sync.Mutex
	hook    AddedHook
}

// NewFileProvider creates a provider rooted at baseDir; one subdirectory
// per task is created lazily on first Add.
func NewFileProvider(baseDir string) *FileProvider {
	return &FileProvider{baseDir: baseDir}
}

// OnAdded registers a hook invoked after every durable Add.
func (p *FileProvider) OnAdded(hook AddedHook) { p.hook = hook }

func (p *FileProvider) taskFile(taskID string) string {
	return filepath.Join(p.baseDir, taskID, "memories.jsonl")
}

func (p *FileProvider) Add(_ context.Context, taskID string, content any, opts AddOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := p.taskFile(taskID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", orcherr.New(orcherr.MemoryError, "memory", "add", "failed to create task memory directory", err)
	}

	kind := KindText
	if _, ok := content.(string); !ok {
		kind = KindJSON
	}

	rec := record{
		MemoryID:   uuid.NewString(),
		TaskID:     taskID,
		AgentName:  opts.AgentID,
		Content:    content,
		Kind:       kind,
		Importance: opts.Importance,
		Metadata:   opts.Metadata,
		Timestamp:  time.Now().UTC(),
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", orcherr.New(orcherr.MemoryError, "memory", "add", "failed to open memory file", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return "", orcherr.New(orcherr.MemoryError, "memory", "add", "failed to encode memory item", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return "", orcherr.New(orcherr.MemoryError, "memory", "add", "failed to persist memory item", err)
	}
	// fsync before returning: add() must only return once the item is
	// durable (spec §4.3 "Durability").
	if err := f.Sync(); err != nil {
		return "", orcherr.New(orcherr.MemoryError, "memory", "add", "failed to fsync memory file", err)
	}

	if p.hook != nil {
		p.hook(rec.toItem())
	}

	return rec.MemoryID, nil
}

func (p *FileProvider) readAll(taskID string) ([]record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.Open(p.taskFile(taskID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, orcherr.New(orcherr.MemoryError, "memory", "read", "failed to open memory file", err)
	}
	defer f.Close()

	var records []record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // skip a corrupt line rather than fail the whole read
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, orcherr.New(orcherr.MemoryError, "memory", "read", "failed to scan memory file", err)
	}
	return records, nil
}

func (p *FileProvider) Search(_ context.Context, taskID, query string, opts SearchOptions) ([]Item, error) {
	records, err := p.readAll(taskID)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	type scored struct {
		item  Item
		score float64
	}
	candidates := make([]scored, 0, len(records))
	queryTokens := tokenize(query)

	for _, rec := range records {
		item := rec.toItem()
		if item.Importance < opts.MinImportance {
			continue
		}
		if !matchesFilter(item.Metadata, opts.MetadataFilter) {
			continue
		}
		text, _ := item.Content.(string)
		score := jaccard(queryTokens, tokenize(text))
		candidates = append(candidates, scored{item: item, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		// stable tiebreak on memory_id keeps results deterministic for
		// identical backend state and query.
		return candidates[i].item.MemoryID < candidates[j].item.MemoryID
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	items := make([]Item, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, c.item)
	}
	return items, nil
}

func (p *FileProvider) List(_ context.Context, taskID string, opts ListOptions) ([]Item, error) {
	records, err := p.readAll(taskID)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(records))
	for _, rec := range records {
		if opts.AgentID != "" && rec.AgentName != opts.AgentID {
			continue
		}
		items = append(items, rec.toItem())
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

func (p *FileProvider) Stats(ctx context.Context, taskID string) (Stats, error) {
	items, err := p.List(ctx, taskID, ListOptions{})
	if err != nil {
		return Stats{}, err
	}
	return computeStats(items), nil
}

// tokenize lowercases and splits on non-alphanumeric runs - intentionally
// simple, matching the "no NLP dependency" posture the router takes
// (SPEC_FULL §4.6).
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

// jaccard returns |a∩b| / |a∪b|, 0 when both sets are empty.
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
