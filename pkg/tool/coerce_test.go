// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package tool_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/orcherr"
	"github.com/kadirpekel/conductor/pkg/tool"
)

// TestRegistry_ArgumentShapeNormalization exercises the argument shapes spec §4.1 documents.
// Exercised indirectly through Registry.Invoke since normalizeArguments is
// unexported - the registry is the only public entry point that shape
// normalization feeds into.
func TestRegistry_ArgumentShapeNormalization(t *testing.T) {
	cases := []struct {
		name    string
		raw     map[string]any
		wantErr bool
		wantMsg string
	}{
		{
			name: "flat map",
			raw:  map[string]any{"message": "hi"},
		},
		{
			name: "nested args object",
			raw:  map[string]any{"args": map[string]any{"message": "hi"}},
		},
		{
			name: "nested kwargs object",
			raw:  map[string]any{"kwargs": map[string]any{"message": "hi"}},
		},
		{
			name:    "positional args with kwargs is rejected",
			raw:     map[string]any{"args": []any{"hi"}, "kwargs": map[string]any{"message": "hi"}},
			wantErr: true,
		},
		{
			name:    "kwargs wrong type",
			raw:     map[string]any{"kwargs": "not-a-map"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := tool.NewRegistry()
			require.NoError(t, r.Register(echoDescriptor(), false))

			res := r.Invoke(context.Background(), "echo", tc.raw, tool.Context{})
			if tc.wantErr {
				require.Error(t, res.Err)
				assert.Equal(t, orcherr.MalformedToolArguments, orcherr.KindOf(res.Err))
				return
			}
			require.True(t, res.Ok())
			assert.Equal(t, "hi", res.Value)
		})
	}
}

func TestDecode_WeaklyTypedInput(t *testing.T) {
	type Args struct {
		Count int    `json:"count"`
		Name  string `json:"name"`
	}

	var out Args
	err := tool.Decode(map[string]any{"count": "3", "name": "widget"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, "widget", out.Name)
}

func TestDecode_MalformedInput(t *testing.T) {
	type Args struct {
		Count int `json:"count"`
	}

	var out Args
	err := tool.Decode(map[string]any{"count": "not-a-number"}, &out)
	require.Error(t, err)
	assert.Equal(t, orcherr.MalformedToolArguments, orcherr.KindOf(err))
}
