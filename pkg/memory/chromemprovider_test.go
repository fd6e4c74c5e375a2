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

func TestChromemProvider_AddAndList(t *testing.T) {
	p := memory.NewChromemProvider(nil)
	ctx := context.Background()

	_, err := p.Add(ctx, "task-1", "the go gopher is a mascot", memory.AddOptions{AgentID: "writer", Importance: 0.6})
	require.NoError(t, err)

	list, err := p.List(ctx, "task-1", memory.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "writer", list[0].AgentName)
}

func TestChromemProvider_RejectsNonTextContent(t *testing.T) {
	p := memory.NewChromemProvider(nil)
	_, err := p.Add(context.Background(), "task-1", map[string]any{"x": 1}, memory.AddOptions{})
	require.Error(t, err)
}

func TestChromemProvider_ScopedToTask(t *testing.T) {
	p := memory.NewChromemProvider(nil)
	ctx := context.Background()

	_, err := p.Add(ctx, "task-a", "alpha content", memory.AddOptions{})
	require.NoError(t, err)

	list, err := p.List(ctx, "task-b", memory.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
