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
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// ChromemProvider is an embedded, in-process semantic Memory Provider
// backed by github.com/philippgille/chromem-go - a pure-Go vector store
// with no external service, so it does not cross into the "concrete
// vector-DB backend" exclusion the way a Pinecone/Qdrant network client
// would (see SPEC_FULL.md §4.3).
//
// Collections are namespaced per task_id so search/list never cross task
// boundaries (spec §4.3 "Scoping"). Grounded on hector's
// pkg/memory/vector_memory.go (Upsert/SearchWithFilter shape), adapted
// from a concrete databases.DatabaseProvider client to chromem-go's
// embedded collection API.
type ChromemProvider struct {
	db       *chromem.DB
	embedder chromem.EmbeddingFunc

	mu          sync.Mutex
	collections map[string]*chromem.Collection

	hook AddedHook
}

// NewChromemProvider creates a provider backed by an in-memory chromem-go
// database. embedder, if nil, falls back to chromem's bundled naive
// embedding function - no API key or network call required, matching the
// "no external service" guarantee above.
func NewChromemProvider(embedder chromem.EmbeddingFunc) *ChromemProvider {
	if embedder == nil {
		embedder = chromem.NewEmbeddingFuncDefault()
	}
	return &ChromemProvider{
		db:          chromem.NewDB(),
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}
}

// OnAdded registers a hook invoked after every durable Add, for the
// Event Bus to turn into a memory.added event (spec §4.3).
func (p *ChromemProvider) OnAdded(hook AddedHook) { p.hook = hook }

func (p *ChromemProvider) collection(taskID string) (*chromem.Collection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.collections[taskID]; ok {
		return c, nil
	}
	c, err := p.db.CreateCollection(taskID, nil, p.embedder)
	if err != nil {
		return nil, err
	}
	p.collections[taskID] = c
	return c, nil
}

func (p *ChromemProvider) Add(ctx context.Context, taskID string, content any, opts AddOptions) (string, error) {
	text, ok := content.(string)
	if !ok {
		return "", orcherr.New(orcherr.MemoryError, "memory", "add",
			"ChromemProvider only stores text content - structured content requires the file provider", nil)
	}

	coll, err := p.collection(taskID)
	if err != nil {
		return "", orcherr.New(orcherr.MemoryError, "memory", "add", "failed to open collection", err)
	}

	id := uuid.NewString()
	metadata := map[string]string{
		"agent_id":   opts.AgentID,
		"importance": fmt.Sprintf("%g", opts.Importance),
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range opts.Metadata {
		metadata["meta_"+k] = fmt.Sprintf("%v", v)
	}

	if err := coll.AddDocument(ctx, chromem.Document{ID: id, Content: text, Metadata: metadata}); err != nil {
		return "", orcherr.New(orcherr.MemoryError, "memory", "add", "failed to persist memory item", err)
	}

	if p.hook != nil {
		p.hook(Item{
			MemoryID:   id,
			TaskID:     taskID,
			AgentName:  opts.AgentID,
			Content:    text,
			Kind:       KindText,
			Importance: opts.Importance,
			Metadata:   opts.Metadata,
			Timestamp:  time.Now(),
		})
	}

	return id, nil
}

func (p *ChromemProvider) Search(ctx context.Context, taskID, query string, opts SearchOptions) ([]Item, error) {
	coll, err := p.collection(taskID)
	if err != nil {
		return nil, orcherr.New(orcherr.MemoryError, "memory", "search", "failed to open collection", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if n := coll.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	results, err := coll.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, orcherr.New(orcherr.MemoryError, "memory", "search", "vector query failed", err)
	}

	items := make([]Item, 0, len(results))
	for _, r := range results {
		item := itemFromResult(taskID, r.ID, r.Content, r.Metadata)
		if item.Importance < opts.MinImportance {
			continue
		}
		if !matchesFilter(item.Metadata, opts.MetadataFilter) {
			continue
		}
		items = append(items, item)
	}
	// chromem-go's Query already orders by descending similarity, which is
	// deterministic for identical backend state and query (spec §4.3
	// "Ordering").
	return items, nil
}

// List has no dedicated "dump the collection" call in chromem-go's public
// API, so it reuses Query against every stored document (nResults ==
// Count()) and re-sorts by the timestamp metadata stamped at Add time -
// recency order comes from that re-sort, not from similarity rank.
func (p *ChromemProvider) List(ctx context.Context, taskID string, opts ListOptions) ([]Item, error) {
	coll, err := p.collection(taskID)
	if err != nil {
		return nil, orcherr.New(orcherr.MemoryError, "memory", "list", "failed to open collection", err)
	}

	n := coll.Count()
	if n == 0 {
		return nil, nil
	}

	results, err := coll.Query(ctx, "", n, nil, nil)
	if err != nil {
		return nil, orcherr.New(orcherr.MemoryError, "memory", "list", "failed to enumerate collection", err)
	}

	items := make([]Item, 0, len(results))
	for _, r := range results {
		item := itemFromResult(taskID, r.ID, r.Content, r.Metadata)
		if opts.AgentID != "" && item.AgentName != opts.AgentID {
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

func (p *ChromemProvider) Stats(ctx context.Context, taskID string) (Stats, error) {
	items, err := p.List(ctx, taskID, ListOptions{})
	if err != nil {
		return Stats{}, err
	}
	return computeStats(items), nil
}

func itemFromResult(taskID, id, content string, metadata map[string]string) Item {
	importance := 0.0
	fmt.Sscanf(metadata["importance"], "%g", &importance)

	ts, _ := time.Parse(time.RFC3339Nano, metadata["timestamp"])

	meta := make(map[string]any)
	for k, v := range metadata {
		if after, ok := stripPrefix(k, "meta_"); ok {
			meta[after] = v
		}
	}

	return Item{
		MemoryID:   id,
		TaskID:     taskID,
		AgentName:  metadata["agent_id"],
		Content:    content,
		Kind:       KindText,
		Importance: importance,
		Metadata:   meta,
		Timestamp:  ts,
	}
}

func stripPrefix(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}

func matchesFilter(meta map[string]any, filter map[string]any) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}
