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
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInitMetrics_Disabled(t *testing.T) {
	m, handler, err := InitMetrics(context.Background(), MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitMetrics() error = %v", err)
	}
	if handler != nil {
		t.Error("expected nil handler when disabled")
	}
	if _, ok := m.(NoopMetrics); !ok {
		t.Errorf("expected NoopMetrics, got %T", m)
	}
}

func TestInitMetrics_ExposesRecordedSeries(t *testing.T) {
	ctx := context.Background()
	m, handler, err := InitMetrics(ctx, MetricsConfig{Enabled: true, Namespace: "swtest"})
	if err != nil {
		t.Fatalf("InitMetrics() error = %v", err)
	}

	m.RecordToolExecution(ctx, "tavily", "web_search", 20*time.Millisecond, nil)
	m.RecordToolExecution(ctx, "tavily", "web_search", 20*time.Millisecond, errors.New("boom"))
	m.RecordLLMCall(ctx, "gpt-4o-mini", "answer", 300*time.Millisecond, 120, 40, nil)
	m.RecordRetrieval(ctx, 5*time.Millisecond, 3, nil)
	m.RecordRequest(ctx, "HYBRID", true, time.Second)
	m.RecordHTTPRequest(ctx, "POST", "/api/rag-chat", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"swtest_tool_calls_total",
		"swtest_tool_errors_total",
		"swtest_llm_tokens_input_total",
		"swtest_chain_requests_total",
		`strategy="HYBRID"`,
		`tool="web_search"`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	if pm, ok := m.(*PrometheusMetrics); ok {
		if err := pm.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}
}

func TestNilPrometheusMetricsIsSafe(t *testing.T) {
	var m *PrometheusMetrics
	ctx := context.Background()
	m.RecordToolExecution(ctx, "p", "t", time.Millisecond, nil)
	m.RecordLLMCall(ctx, "m", "route", time.Millisecond, 1, 1, nil)
	m.RecordRequest(ctx, "GENERAL", false, time.Millisecond)
	m.RecordRetrieval(ctx, time.Millisecond, 0, nil)
	m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
}

func TestGlobalMetrics(t *testing.T) {
	prev := GetGlobalMetrics()
	defer SetGlobalMetrics(prev)

	SetGlobalMetrics(nil)
	if _, ok := GetGlobalMetrics().(NoopMetrics); !ok {
		t.Error("SetGlobalMetrics(nil) should install NoopMetrics")
	}
}

func TestInitGlobalTracer_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitGlobalTracer(context.Background(), TracerConfig{
		Enabled:    true,
		Exporter:   "stdout",
		SampleRate: 1,
		Writer:     &buf,
	})
	if err != nil {
		t.Fatalf("InitGlobalTracer() error = %v", err)
	}

	_, span := StartSpan(context.Background(), SpanToolExecution)
	EndSpan(span, errors.New("tool failed"))

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error = %v", err)
	}
	if !strings.Contains(buf.String(), SpanToolExecution) {
		t.Errorf("expected exported span, got %q", buf.String())
	}

	disabled, err := InitGlobalTracer(context.Background(), TracerConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	_ = disabled(context.Background())
}

func TestInitGlobalTracer_UnknownExporter(t *testing.T) {
	_, err := InitGlobalTracer(context.Background(), TracerConfig{Enabled: true, Exporter: "zipkin"})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}
