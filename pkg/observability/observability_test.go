// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package observability_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/observability"
)

func TestMetrics_NilSafeWhenDisabled(t *testing.T) {
	m, err := observability.NewMetrics(&observability.MetricsConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)

	// A nil *Metrics must still satisfy Recorder without panicking.
	var r observability.Recorder = m
	r.RecordAgentCall("writer", "team", 10*time.Millisecond)
}

func TestMetrics_RecordsAgentAndLLMCalls(t *testing.T) {
	m, err := observability.NewMetrics(&observability.MetricsConfig{Enabled: true, Namespace: "test"})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordAgentCall("writer", "team-a", 100*time.Millisecond)
	m.RecordLLMCall("gpt-4o", "openai", 200*time.Millisecond)
	m.RecordToolCall("search", 5*time.Millisecond)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNoopMetrics_SatisfiesRecorder(t *testing.T) {
	var r observability.Recorder = observability.NoopMetrics{}
	r.RecordAgentCall("a", "t", time.Millisecond)
	r.RecordSessionEvent("task.created")
}

func TestGlobalMetrics_DefaultsToNoop(t *testing.T) {
	got := observability.GetGlobalMetrics()
	assert.NotNil(t, got)

	observability.SetGlobalMetrics(observability.NoopMetrics{})
	assert.NotNil(t, observability.GetGlobalMetrics())
}

func TestTracer_DisabledReturnsNilWithoutError(t *testing.T) {
	tr, err := observability.NewTracer(context.Background(), &observability.TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, tr)

	ctx, span := tr.Start(context.Background(), "noop")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
}

func TestTracer_StdoutExporterEmitsSpans(t *testing.T) {
	var buf bytes.Buffer
	tr, err := observability.NewTracer(context.Background(), &observability.TracingConfig{
		Enabled:      true,
		ServiceName:  "conductor-test",
		SamplingRate: 1.0,
	}, observability.WithWriter(&buf))
	require.NoError(t, err)
	require.NotNil(t, tr)
	defer tr.Shutdown(context.Background())

	_, span := tr.StartAgentRun(context.Background(), "task-1", "writer", "gpt-4o", 1)
	span.End()

	require.NoError(t, tr.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), observability.SpanAgentRun)
}

func TestDebugExporter_CapturesToolExecutionSpans(t *testing.T) {
	debug := observability.NewDebugExporter()
	tr, err := observability.NewTracer(context.Background(), &observability.TracingConfig{
		Enabled:      true,
		ServiceName:  "conductor-test",
		SamplingRate: 1.0,
	}, observability.WithDebugExporter(debug), observability.WithWriter(io.Discard))
	require.NoError(t, err)

	_, span := tr.StartToolExecution(context.Background(), "search")
	span.End()
	require.NoError(t, tr.Shutdown(context.Background()))

	spans := debug.GetSpansByName(observability.SpanToolExecution)
	assert.Len(t, spans, 1)
}
