// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/memory"
)

func TestFileProvider_AddSearchListStats(t *testing.T) {
	dir := t.TempDir()
	p := memory.NewFileProvider(dir)
	ctx := context.Background()

	var added []memory.Item
	p.OnAdded(func(item memory.Item) { added = append(added, item) })

	id1, err := p.Add(ctx, "task-1", "the quick brown fox jumps over the lazy dog", memory.AddOptions{AgentID: "researcher", Importance: 0.9})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	_, err = p.Add(ctx, "task-1", "an unrelated sentence about cooking pasta", memory.AddOptions{AgentID: "chef", Importance: 0.2})
	require.NoError(t, err)

	require.Len(t, added, 2)

	results, err := p.Search(ctx, "task-1", "quick fox", memory.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, id1, results[0].MemoryID)

	list, err := p.List(ctx, "task-1", memory.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	// newest first
	assert.False(t, list[0].Timestamp.Before(list[1].Timestamp))

	filtered, err := p.List(ctx, "task-1", memory.ListOptions{AgentID: "chef"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "chef", filtered[0].AgentName)

	stats, err := p.Stats(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CountTotal)
	assert.Equal(t, 1, stats.CountByAgent["researcher"])
	assert.Equal(t, 1, stats.CountByAgent["chef"])
}

func TestFileProvider_ScopedToTask(t *testing.T) {
	dir := t.TempDir()
	p := memory.NewFileProvider(dir)
	ctx := context.Background()

	_, err := p.Add(ctx, "task-a", "memory for task a", memory.AddOptions{})
	require.NoError(t, err)

	list, err := p.List(ctx, "task-b", memory.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFileProvider_MinImportanceFilter(t *testing.T) {
	dir := t.TempDir()
	p := memory.NewFileProvider(dir)
	ctx := context.Background()

	_, err := p.Add(ctx, "task-1", "low importance note", memory.AddOptions{Importance: 0.1})
	require.NoError(t, err)
	_, err = p.Add(ctx, "task-1", "high importance note", memory.AddOptions{Importance: 0.9})
	require.NoError(t, err)

	results, err := p.Search(ctx, "task-1", "note", memory.SearchOptions{MinImportance: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.9, results[0].Importance)
}

func TestFileProvider_SearchDeterministicForSameState(t *testing.T) {
	dir := t.TempDir()
	p := memory.NewFileProvider(dir)
	ctx := context.Background()

	for _, text := range []string{"go programming language", "python programming language", "go is fast"} {
		_, err := p.Add(ctx, "task-1", text, memory.AddOptions{})
		require.NoError(t, err)
	}

	first, err := p.Search(ctx, "task-1", "go programming", memory.SearchOptions{})
	require.NoError(t, err)

	second, err := p.Search(ctx, "task-1", "go programming", memory.SearchOptions{})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].MemoryID, second[i].MemoryID)
	}
}
