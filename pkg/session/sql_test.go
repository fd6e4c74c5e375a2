// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/brain"
	"github.com/kadirpekel/conductor/pkg/session"
)

func newSQLiteStore(t *testing.T) *session.SQLStore {
	t.Helper()
	s, err := session.OpenSQLStore(context.Background(), "sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStore_CreateGetRoundTrips(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, session.Record{TeamName: "writers", Prompt: "write a guide on X"})
	require.NoError(t, err)

	rec, steps, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCreated, rec.Status)
	assert.Empty(t, steps)
}

func TestSQLStore_AppendStepPreservesOrder(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, session.Record{TeamName: "t", Prompt: "a"})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.AppendStep(ctx, id, session.Step{
			Round: i, Agent: "writer",
			Messages: []brain.Message{{Role: brain.RoleAssistant, Content: "step"}},
		}))
	}

	_, steps, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, 1, steps[0].Round)
	assert.Equal(t, 3, steps[2].Round)
}

func TestSQLStore_UpdateUnknownSessionReturnsNotFound(t *testing.T) {
	s := newSQLiteStore(t)
	status := session.StatusRunning
	err := s.Update(context.Background(), "missing", session.Patch{Status: &status})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSQLStore_ListRespectsLimit(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, session.Record{TeamName: "t", Prompt: "p"})
		require.NoError(t, err)
	}

	recs, err := s.List(ctx, session.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSQLStore_DeleteRemovesSessionAndSteps(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, session.Record{TeamName: "t", Prompt: "p"})
	require.NoError(t, err)
	require.NoError(t, s.AppendStep(ctx, id, session.Step{Round: 1, Agent: "a"}))

	require.NoError(t, s.Delete(ctx, id))
	_, _, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, session.ErrNotFound)
}
