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

func TestNopProvider_DiscardsEverything(t *testing.T) {
	var p memory.Provider = memory.NopProvider{}
	ctx := context.Background()

	id, err := p.Add(ctx, "task-1", "anything", memory.AddOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	items, err := p.List(ctx, "task-1", memory.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)

	stats, err := p.Stats(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.CountTotal)
}
