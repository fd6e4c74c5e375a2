// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package tool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/orcherr"
	"github.com/kadirpekel/conductor/pkg/tool"
)

func echoDescriptor() *tool.Descriptor {
	return &tool.Descriptor{
		Name:        "echo",
		Description: "echoes the given message back",
		Parameters: []tool.ParameterSchema{
			{Name: "message", Type: "string", Description: "text to echo", Required: true},
		},
		Call: func(_ context.Context, args map[string]any) (any, error) {
			return args["message"], nil
		},
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := tool.NewRegistry()
	require.NoError(t, r.Register(echoDescriptor(), false))

	err := r.Register(echoDescriptor(), false)
	require.Error(t, err)
	assert.Equal(t, orcherr.DuplicateTool, orcherr.KindOf(err))

	require.NoError(t, r.Register(echoDescriptor(), true))
}

func TestRegistry_InvokeSuccess(t *testing.T) {
	r := tool.NewRegistry()
	require.NoError(t, r.Register(echoDescriptor(), false))

	res := r.Invoke(context.Background(), "echo", map[string]any{"message": "hi"}, tool.Context{})
	require.True(t, res.Ok())
	assert.Equal(t, "hi", res.Value)
}

func TestRegistry_InvokeUnknownTool(t *testing.T) {
	r := tool.NewRegistry()
	res := r.Invoke(context.Background(), "missing", nil, tool.Context{})
	require.Error(t, res.Err)
	assert.Equal(t, orcherr.InvalidArguments, orcherr.KindOf(res.Err))
}

func TestRegistry_InvokeMissingRequiredArgument(t *testing.T) {
	r := tool.NewRegistry()
	require.NoError(t, r.Register(echoDescriptor(), false))

	res := r.Invoke(context.Background(), "echo", map[string]any{}, tool.Context{})
	require.Error(t, res.Err)
	assert.Equal(t, orcherr.InvalidArguments, orcherr.KindOf(res.Err))
}

func TestRegistry_InvokeUnknownArgument(t *testing.T) {
	r := tool.NewRegistry()
	require.NoError(t, r.Register(echoDescriptor(), false))

	res := r.Invoke(context.Background(), "echo", map[string]any{"message": "hi", "extra": 1}, tool.Context{})
	require.Error(t, res.Err)
	assert.Equal(t, orcherr.InvalidArguments, orcherr.KindOf(res.Err))
}

func TestRegistry_InvokeReservedKeyRejectedWithoutScope(t *testing.T) {
	r := tool.NewRegistry()
	require.NoError(t, r.Register(echoDescriptor(), false))

	res := r.Invoke(context.Background(), "echo", map[string]any{"message": "hi", "task_id": "t1"}, tool.Context{})
	require.Error(t, res.Err)
	assert.Equal(t, orcherr.InvalidArguments, orcherr.KindOf(res.Err))
}

func TestRegistry_InvokeInjectsTaskScope(t *testing.T) {
	r := tool.NewRegistry()
	d := &tool.Descriptor{
		Name:           "scoped",
		Description:    "reports its scope",
		NeedsTaskScope: true,
		Call: func(_ context.Context, args map[string]any) (any, error) {
			return args["task_id"], nil
		},
	}
	require.NoError(t, r.Register(d, false))

	res := r.Invoke(context.Background(), "scoped", map[string]any{}, tool.Context{TaskID: "t-42"})
	require.True(t, res.Ok())
	assert.Equal(t, "t-42", res.Value)
}

func TestRegistry_InvokeTimeout(t *testing.T) {
	r := tool.NewRegistry()
	d := &tool.Descriptor{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Call: func(ctx context.Context, _ map[string]any) (any, error) {
			select {
			case <-time.After(time.Second):
				return "too late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	require.NoError(t, r.Register(d, false))

	res := r.Invoke(context.Background(), "slow", map[string]any{}, tool.Context{})
	require.Error(t, res.Err)
	assert.Equal(t, orcherr.ToolTimeout, orcherr.KindOf(res.Err))
}

func TestRegistry_InvokeRecoversFromPanic(t *testing.T) {
	r := tool.NewRegistry()
	d := &tool.Descriptor{
		Name: "boom",
		Call: func(context.Context, map[string]any) (any, error) {
			panic("kaboom")
		},
	}
	require.NoError(t, r.Register(d, false))

	res := r.Invoke(context.Background(), "boom", map[string]any{}, tool.Context{})
	require.Error(t, res.Err)
	assert.Equal(t, orcherr.ToolFailure, orcherr.KindOf(res.Err))
}

func TestRegistry_InvokeWrapsCallError(t *testing.T) {
	r := tool.NewRegistry()
	sentinel := errors.New("boom")
	d := &tool.Descriptor{
		Name: "fails",
		Call: func(context.Context, map[string]any) (any, error) {
			return nil, sentinel
		},
	}
	require.NoError(t, r.Register(d, false))

	res := r.Invoke(context.Background(), "fails", map[string]any{}, tool.Context{})
	require.Error(t, res.Err)
	assert.Equal(t, orcherr.ToolFailure, orcherr.KindOf(res.Err))
	assert.ErrorIs(t, res.Err, sentinel)
}

func TestRegistry_SchemasSkipsUnknownTolerant(t *testing.T) {
	r := tool.NewRegistry()
	require.NoError(t, r.Register(echoDescriptor(), false))

	schemas := r.Schemas([]string{"echo", "does-not-exist"})
	require.Len(t, schemas, 1)
	assert.Equal(t, "echo", schemas[0].Function.Name)
}

func TestRegistry_ListIsSorted(t *testing.T) {
	r := tool.NewRegistry()
	require.NoError(t, r.Register(&tool.Descriptor{Name: "zeta", Call: noop}, false))
	require.NoError(t, r.Register(&tool.Descriptor{Name: "alpha", Call: noop}, false))

	assert.Equal(t, []string{"alpha", "zeta"}, r.List())
}

func noop(context.Context, map[string]any) (any, error) { return nil, nil }
