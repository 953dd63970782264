// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	globalMetrics Metrics = NoopMetrics{}
	metricsMu     sync.RWMutex
)

// Metrics records the operational signals of the answering pipeline.
type Metrics interface {
	RecordRequest(ctx context.Context, strategy string, streaming bool, duration time.Duration)
	RecordRetrieval(ctx context.Context, duration time.Duration, docs int, err error)
	RecordToolExecution(ctx context.Context, provider, tool string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model, purpose string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

type PrometheusMetrics struct {
	provider *sdkmetric.MeterProvider

	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter

	retrievalDuration metric.Float64Histogram
	retrievalDocs     metric.Int64Counter
	retrievalErrors   metric.Int64Counter

	toolDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrors       metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter
}

func (m *PrometheusMetrics) RecordRequest(ctx context.Context, strategy string, streaming bool, duration time.Duration) {
	if m == nil || m.requestDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("streaming", streaming),
	)
	m.requestDuration.Record(ctx, duration.Seconds(), attrs)
	m.requestsTotal.Add(ctx, 1, attrs)
}

func (m *PrometheusMetrics) RecordRetrieval(ctx context.Context, duration time.Duration, docs int, err error) {
	if m == nil || m.retrievalDuration == nil {
		return
	}
	m.retrievalDuration.Record(ctx, duration.Seconds())
	m.retrievalDocs.Add(ctx, int64(docs))
	if err != nil {
		m.retrievalErrors.Add(ctx, 1)
	}
}

func (m *PrometheusMetrics) RecordToolExecution(ctx context.Context, provider, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("tool", tool),
	)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model, purpose string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("purpose", purpose),
	)
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
	m.httpRequests.Add(ctx, 1, attrs)
}

// Shutdown flushes and stops the meter provider.
func (m *PrometheusMetrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) RecordRequest(context.Context, string, bool, time.Duration) {}

func (NoopMetrics) RecordRetrieval(context.Context, time.Duration, int, error) {}

func (NoopMetrics) RecordToolExecution(context.Context, string, string, time.Duration, error) {}

func (NoopMetrics) RecordLLMCall(context.Context, string, string, time.Duration, int, int, error) {}

func (NoopMetrics) RecordHTTPRequest(context.Context, string, string, int, time.Duration) {}

func SetGlobalMetrics(m Metrics) {
	if m == nil {
		m = NoopMetrics{}
	}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
