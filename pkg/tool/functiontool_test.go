// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package tool_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/tool"
)

type greetArgs struct {
	Name string `json:"name" jsonschema:"required,description=person to greet"`
	Age  int    `json:"age,omitempty" jsonschema:"description=age in years"`
}

func TestFunctionTool_New(t *testing.T) {
	d := tool.New(tool.Config{
		Name:        "greet",
		Description: "greets a person by name",
	}, func(_ context.Context, args greetArgs) (any, error) {
		return fmt.Sprintf("hello %s (%d)", args.Name, args.Age), nil
	})

	assert.Equal(t, "greet", d.Name)

	var nameParam *tool.ParameterSchema
	for i := range d.Parameters {
		if d.Parameters[i].Name == "name" {
			nameParam = &d.Parameters[i]
		}
	}
	require.NotNil(t, nameParam)
	assert.True(t, nameParam.Required)

	r := tool.NewRegistry()
	require.NoError(t, r.Register(d, false))

	res := r.Invoke(context.Background(), "greet", map[string]any{"name": "Ada", "age": "36"}, tool.Context{})
	require.True(t, res.Ok())
	assert.Equal(t, "hello Ada (36)", res.Value)
}
