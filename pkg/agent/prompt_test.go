// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/agent"
)

func TestRenderPrompt_ResolvesKnownVariable(t *testing.T) {
	out, err := agent.RenderPrompt("Hello {name}!", map[string]string{"name": "Ada"}, true)
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!", out)
}

func TestRenderPrompt_StrictMissingRequiredErrors(t *testing.T) {
	_, err := agent.RenderPrompt("Hello {name}!", map[string]string{}, true)
	require.Error(t, err)
}

func TestRenderPrompt_LenientMissingResolvesEmpty(t *testing.T) {
	out, err := agent.RenderPrompt("Hello {name}!", map[string]string{}, false)
	require.NoError(t, err)
	assert.Equal(t, "Hello !", out)
}

func TestRenderPrompt_OptionalMarkerNeverErrorsEvenInStrictMode(t *testing.T) {
	out, err := agent.RenderPrompt("Hi {name?}.", map[string]string{}, true)
	require.NoError(t, err)
	assert.Equal(t, "Hi .", out)
}

func TestRenderPrompt_InvalidIdentifierLeftLiteral(t *testing.T) {
	out, err := agent.RenderPrompt("price: {1.99}", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "price: {1.99}", out)
}
