// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package brain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/brain"
	"github.com/kadirpekel/conductor/pkg/orcherr"
)

func TestAssembler_EveryChunkCarriesCallID(t *testing.T) {
	a := brain.NewAssembler()
	a.Add(brain.ToolCallDelta{CallID: "call_1", NameDelta: "get_weather", ArgumentDelta: `{"city":`})
	a.Add(brain.ToolCallDelta{CallID: "call_1", ArgumentDelta: `"Paris"}`})

	got := a.Finish()
	require.Len(t, got, 1)
	require.NoError(t, got[0].Err)
	assert.Equal(t, "call_1", got[0].Call.ID)
	assert.Equal(t, "get_weather", got[0].Call.Name)
	assert.JSONEq(t, `{"city":"Paris"}`, got[0].Call.Arguments)
}

func TestAssembler_OnlyFirstChunkCarriesCallID(t *testing.T) {
	a := brain.NewAssembler()
	a.Add(brain.ToolCallDelta{CallID: "call_1", NameDelta: "get_weather"})
	a.Add(brain.ToolCallDelta{ArgumentDelta: `{"city":`})
	a.Add(brain.ToolCallDelta{ArgumentDelta: `"Paris"}`})

	got := a.Finish()
	require.Len(t, got, 1)
	require.NoError(t, got[0].Err)
	assert.Equal(t, "call_1", got[0].Call.ID)
	assert.JSONEq(t, `{"city":"Paris"}`, got[0].Call.Arguments)
}

func TestAssembler_MultipleConcurrentCalls(t *testing.T) {
	a := brain.NewAssembler()
	a.Add(brain.ToolCallDelta{CallID: "call_1", NameDelta: "a", ArgumentDelta: `{"x":1}`})
	a.Add(brain.ToolCallDelta{CallID: "call_2", NameDelta: "b", ArgumentDelta: `{"y":2}`})

	got := a.Finish()
	require.Len(t, got, 2)
	assert.Equal(t, "call_1", got[0].Call.ID)
	assert.Equal(t, "call_2", got[1].Call.ID)
}

func TestAssembler_MalformedArgumentsIsolatedPerCall(t *testing.T) {
	a := brain.NewAssembler()
	a.Add(brain.ToolCallDelta{CallID: "good", NameDelta: "a", ArgumentDelta: `{"x":1}`})
	a.Add(brain.ToolCallDelta{CallID: "bad", NameDelta: "b", ArgumentDelta: `{not json`})

	got := a.Finish()
	require.Len(t, got, 2)
	assert.NoError(t, got[0].Err)
	require.Error(t, got[1].Err)
	assert.Equal(t, orcherr.MalformedToolArguments, orcherr.KindOf(got[1].Err))
}

func TestAssembler_ResetClearsState(t *testing.T) {
	a := brain.NewAssembler()
	a.Add(brain.ToolCallDelta{CallID: "call_1", NameDelta: "a", ArgumentDelta: `{}`})
	a.Reset()

	got := a.Finish()
	assert.Empty(t, got)
}

func TestAssembler_NoOpenCallDropsOrphanDelta(t *testing.T) {
	a := brain.NewAssembler()
	a.Add(brain.ToolCallDelta{ArgumentDelta: "orphan, no call opened yet"})

	got := a.Finish()
	assert.Empty(t, got)
}
