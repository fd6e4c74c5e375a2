// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	otelnoop "go.opentelemetry.io/otel/trace/noop"
)

func noopSpan() trace.Span {
	_, span := otelnoop.NewTracerProvider().Tracer("").Start(context.Background(), "noop")
	return span
}

// TracerOption configures a Tracer at construction time.
type TracerOption func(*Tracer)

// WithDebugExporter attaches an in-memory span exporter alongside the
// configured one, so recent spans can be inspected without a collector.
func WithDebugExporter(d *DebugExporter) TracerOption {
	return func(t *Tracer) { t.debug = d }
}

// WithCapturePayloads controls whether AddPayload/AddToolPayload record
// full request/response bodies on spans rather than truncated previews.
func WithCapturePayloads(capture bool) TracerOption {
	return func(t *Tracer) { t.capturePayloads = capture }
}

// WithWriter overrides the stdout exporter's destination, primarily for
// tests that want to assert on emitted span output.
func WithWriter(w io.Writer) TracerOption {
	return func(t *Tracer) { t.writer = w }
}

// Tracer wraps an OpenTelemetry TracerProvider with the span helpers the
// Task Executor and Agent turn loop use to annotate each round and tool
// call. The default exporter writes JSON span data to stdout; there is no
// collector dependency, matching the teacher's emphasis on a batteries-
// included local story before anything talks to an external backend.
type Tracer struct {
	provider        *sdktrace.TracerProvider
	tracer          trace.Tracer
	debug           *DebugExporter
	capturePayloads bool
	writer          io.Writer
}

// NewTracer builds a Tracer from TracingConfig. Returns nil, nil if tracing
// is disabled so callers can treat a nil *Tracer as "do nothing".
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	t := &Tracer{writer: os.Stdout}
	for _, opt := range opts {
		opt(t)
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(t.writer),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout span exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String(AttrServiceName, cfg.ServiceName),
		attribute.String(AttrServiceVersion, cfg.ServiceVersion),
	)

	exporters := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if t.debug != nil {
		exporters = append(exporters, sdktrace.WithBatcher(t.debug))
	}

	t.provider = sdktrace.NewTracerProvider(exporters...)
	t.tracer = t.provider.Tracer(cfg.ServiceName)
	otel.SetTracerProvider(t.provider)

	return t, nil
}

// Start begins a span with the given name and options.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, name, opts...)
}

// StartAgentRun begins a span covering one full Agent.Turn invocation.
func (t *Tracer) StartAgentRun(ctx context.Context, taskID, agentName, llmModel string, round int) (context.Context, trace.Span) {
	return t.Start(ctx, SpanAgentRun, trace.WithAttributes(
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrAgentName, agentName),
		attribute.String(AttrAgentLLM, llmModel),
		attribute.Int(AttrRoundCount, round),
	))
}

// StartLLMCall begins a span covering one Brain.Stream call.
func (t *Tracer) StartLLMCall(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanLLMCall, trace.WithAttributes(attribute.String(AttrLLMModel, model)))
}

// StartToolExecution begins a span covering one tool invocation.
func (t *Tracer) StartToolExecution(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanToolExecution, trace.WithAttributes(attribute.String(AttrToolName, toolName)))
}

// StartMemorySearch begins a span covering one Memory.Search call.
func (t *Tracer) StartMemorySearch(ctx context.Context, backend string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanMemorySearch, trace.WithAttributes(attribute.String("memory.backend", backend)))
}

// AddLLMUsage annotates a span with token counts once a Brain response completes.
func (t *Tracer) AddLLMUsage(span trace.Span, inputTokens, outputTokens int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int(AttrLLMTokensInput, inputTokens),
		attribute.Int(AttrLLMTokensOutput, outputTokens),
	)
}

// AddPayload attaches request/response previews to a span, truncated unless capturePayloads is set.
func (t *Tracer) AddPayload(span trace.Span, request, response string) {
	if span == nil {
		return
	}
	if t != nil && !t.capturePayloads {
		request, response = truncateString(request, 256), truncateString(response, 256)
	}
	span.SetAttributes(attribute.String("llm.request", request), attribute.String("llm.response", response))
}

// AddToolPayload attaches tool call argument/result previews to a span.
func (t *Tracer) AddToolPayload(span trace.Span, args, result string) {
	if span == nil {
		return
	}
	if t != nil && !t.capturePayloads {
		args, result = truncateString(args, 256), truncateString(result, 256)
	}
	span.SetAttributes(attribute.String("tool.arguments", args), attribute.String("tool.result", result))
}

// RecordError records an error on a span and marks its status accordingly.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrErrorType, err.Error()))
}

// DebugExporter returns the attached debug exporter, or nil if none was configured.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debug
}

// Shutdown flushes and stops the underlying TracerProvider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
