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
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the Prometheus-backed meter.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// InitMetrics builds the instrument set on a dedicated Prometheus registry
// and returns the recorder plus the scrape handler. With metrics disabled
// it returns NoopMetrics and a nil handler.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (Metrics, http.Handler, error) {
	if !cfg.Enabled {
		return NoopMetrics{}, nil, nil
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultServiceName
	}

	registry := promclient.NewRegistry()
	promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter(tracerName)

	b := instrumentBuilder{meter: meter, ns: ns}
	m := &PrometheusMetrics{
		provider:          meterProvider,
		requestDuration:   b.histogram("chain_request_duration_seconds", "RAG chain request duration in seconds"),
		requestsTotal:     b.counter("chain_requests_total", "Total RAG chain requests by strategy"),
		retrievalDuration: b.histogram("retrieval_duration_seconds", "Local retrieval duration in seconds"),
		retrievalDocs:     b.counter("retrieval_documents_total", "Total documents returned by local retrieval"),
		retrievalErrors:   b.counter("retrieval_errors_total", "Total local retrieval errors"),
		toolDuration:      b.histogram("tool_execution_duration_seconds", "Tool execution duration in seconds"),
		toolCalls:         b.counter("tool_calls_total", "Total tool calls"),
		toolErrors:        b.counter("tool_errors_total", "Total tool errors"),
		llmDuration:       b.histogram("llm_request_duration_seconds", "LLM request duration in seconds"),
		llmInputTokens:    b.counter("llm_tokens_input_total", "Total input tokens sent to the LLM"),
		llmOutputTokens:   b.counter("llm_tokens_output_total", "Total output tokens from the LLM"),
		llmErrors:         b.counter("llm_errors_total", "Total LLM errors"),
		httpDuration:      b.histogram("http_request_duration_seconds", "HTTP request duration in seconds"),
		httpRequests:      b.counter("http_requests_total", "Total HTTP requests"),
	}
	if b.err != nil {
		return nil, nil, b.err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

// instrumentBuilder keeps the first creation error so InitMetrics reads
// as a flat list of instruments.
type instrumentBuilder struct {
	meter metric.Meter
	ns    string
	err   error
}

func (b *instrumentBuilder) histogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(b.ns+"_"+name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

func (b *instrumentBuilder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(b.ns+"_"+name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}
