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

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/kadirpekel/sitewise/pkg/model"
	"github.com/kadirpekel/sitewise/pkg/observability"
	"github.com/kadirpekel/sitewise/pkg/rag"
	"github.com/kadirpekel/sitewise/pkg/tool"
)

// ToolCatalog discovers and dispatches tools. *catalog.Catalog implements it.
type ToolCatalog interface {
	DiscoverAll(ctx context.Context) ([]tool.Descriptor, error)
	Call(ctx context.Context, inv tool.Invocation) (tool.Result, error)
	Close() error
}

// Selection is what the router decided and executed for one query.
type Selection struct {
	// Used is true when the model proposed at least one call.
	Used bool

	// ToolsUsed lists each attempted catalog tool once, in call order.
	ToolsUsed []string

	// Results holds the last result per tool name, including failures.
	Results map[string]tool.Result

	// DirectAnswer is the model's text when it chose not to call tools.
	DirectAnswer string
}

// HasResults reports whether at least one tool call succeeded. Failed
// slots stay in Results for reporting but do not count.
func (s Selection) HasResults() bool {
	for _, r := range s.Results {
		if !r.Failed() {
			return true
		}
	}
	return false
}

// Router defaults.
const (
	DefaultRouterTemperature = 0.3
	DefaultRouterHistory     = 4
)

// RouterConfig configures a Router.
type RouterConfig struct {
	Temperature float64

	// HistoryTurns is how many trailing turns accompany the query.
	HistoryTurns int

	// EnhanceDescriptions appends usage guidance to known tool descriptions.
	EnhanceDescriptions bool

	Classifier *Classifier
}

// Router lets the model pick tools for a query and runs them.
type Router struct {
	catalog ToolCatalog
	llm     model.LLM
	cfg     RouterConfig

	group singleflight.Group

	mu          sync.Mutex
	tools       []tool.FunctionSchema
	initialized bool
	generation  uint64
}

func NewRouter(catalog ToolCatalog, llm model.LLM, cfg RouterConfig) *Router {
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultRouterTemperature
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultRouterHistory
	}
	if cfg.Classifier == nil {
		cfg.Classifier = defaultClassifier
	}
	return &Router{catalog: catalog, llm: llm, cfg: cfg}
}

// Initialize discovers tools once and returns how many are offered to the
// model. Concurrent callers share a single discovery. Empty or failed
// discovery installs the static fallback catalog.
func (r *Router) Initialize(ctx context.Context) int {
	r.mu.Lock()
	if r.initialized {
		n := len(r.tools)
		r.mu.Unlock()
		return n
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do("discover", func() (any, error) {
		r.mu.Lock()
		if r.initialized {
			n := len(r.tools)
			r.mu.Unlock()
			return n, nil
		}
		gen := r.generation
		r.mu.Unlock()

		tools := r.discover(ctx)

		r.mu.Lock()
		defer r.mu.Unlock()
		if gen == r.generation {
			r.tools = tools
			r.initialized = true
		}
		return len(tools), nil
	})
	return v.(int)
}

func (r *Router) discover(ctx context.Context) []tool.FunctionSchema {
	descs, err := r.catalog.DiscoverAll(ctx)
	if err != nil {
		slog.Warn("Tool discovery failed, using fallback tools", "error", err)
		return tool.FallbackCatalog()
	}
	if len(descs) == 0 {
		slog.Warn("No tools discovered, using fallback tools")
		return tool.FallbackCatalog()
	}

	tools := make([]tool.FunctionSchema, 0, len(descs))
	for _, d := range descs {
		s := tool.ToFunctionSchema(d)
		if r.cfg.EnhanceDescriptions {
			s = tool.EnhanceDescription(s)
		}
		tools = append(tools, s)
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	slog.Info("Tool router ready", "tools", len(tools), "names", strings.Join(names, ","))
	return tools
}

// Reset drops the cached tools so the next Initialize discovers again.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = nil
	r.initialized = false
	r.generation++
}

// Refresh rediscovers and replaces the offered tools in one step. Unlike
// Reset there is no window in which the model sees no tools or the
// fallback catalog unless discovery itself comes back empty.
func (r *Router) Refresh(ctx context.Context) int {
	tools := r.discover(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = tools
	r.initialized = true
	r.generation++
	return len(tools)
}

// Tools returns the schemas offered to the model.
func (r *Router) Tools() []tool.FunctionSchema {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.tools)
}

// Close closes the catalog.
func (r *Router) Close() error {
	return r.catalog.Close()
}

// SelectAndExecute asks the model which tools query needs and runs them
// sequentially. Small talk skips the model entirely. A model failure yields
// an empty Selection.
func (r *Router) SelectAndExecute(ctx context.Context, query string, docs []rag.Document, history []Turn) Selection {
	if IsTrivial(query) {
		slog.Debug("Small talk, skipping tool selection", "query", query)
		return Selection{}
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanToolRouting)
	var routeErr error
	defer func() { observability.EndSpan(span, routeErr) }()

	offered := r.Tools()
	if len(offered) == 0 {
		offered = tool.FallbackCatalog()
	}
	realtime := r.cfg.Classifier.NeedsRealtime(query)
	span.SetAttributes(
		attribute.Int(observability.AttrToolCount, len(offered)),
		attribute.Bool(observability.AttrChainRealtime, realtime),
	)

	msgs := []model.Message{{Role: model.RoleSystem, Content: routerPrompt(docs, realtime)}}
	recent := history
	if len(recent) > r.cfg.HistoryTurns {
		recent = recent[len(recent)-r.cfg.HistoryTurns:]
	}
	msgs = append(msgs, historyMessages(recent)...)
	msgs = append(msgs, model.Message{Role: model.RoleUser, Content: query})

	req := &model.Request{
		Messages:   msgs,
		Tools:      offered,
		ToolChoice: model.ToolChoiceAuto,
		Config: &model.GenerateConfig{
			Temperature: model.Ptr(r.cfg.Temperature),
			Metadata:    map[string]string{model.MetadataPurpose: "tool_routing"},
		},
	}

	var resp *model.Response
	for res, err := range r.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			routeErr = &GenerationError{Stage: "route", Err: err}
			slog.Warn("Tool selection failed", "error", routeErr)
			return Selection{}
		}
		resp = res
	}
	if !resp.HasToolCalls() {
		sel := Selection{}
		if resp != nil {
			sel.DirectAnswer = strings.TrimSpace(resp.Text)
		}
		slog.Debug("Model chose no tools", "direct_answer", sel.DirectAnswer != "")
		return sel
	}

	known := make(map[string]bool, len(offered))
	for _, t := range offered {
		known[t.Name] = true
	}
	return r.execute(ctx, resp.ToolCalls, known)
}

func (r *Router) execute(ctx context.Context, calls []tool.Call, known map[string]bool) Selection {
	sel := Selection{Used: true, ToolsUsed: []string{}, Results: make(map[string]tool.Result, len(calls))}

	for _, call := range calls {
		res, err := r.invoke(ctx, call)
		sel.Results[call.Name] = res

		var notFound *tool.NotFoundError
		if !known[call.Name] || errors.As(err, &notFound) {
			slog.Warn("Model requested an unknown tool", "tool", call.Name)
			continue
		}
		if err != nil {
			slog.Warn("Tool call failed", "tool", call.Name, "error", err)
		}
		if !slices.Contains(sel.ToolsUsed, call.Name) {
			sel.ToolsUsed = append(sel.ToolsUsed, call.Name)
		}
	}

	slog.Info("Executed tools", "tools", strings.Join(sel.ToolsUsed, ","), "calls", len(calls))
	return sel
}

// invoke always returns a result slot; err is set when the slot is a failure
// raised before or by dispatch.
func (r *Router) invoke(ctx context.Context, call tool.Call) (tool.Result, error) {
	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			err = fmt.Errorf("invalid arguments: %w", err)
			return tool.Failure(call.Name, err), err
		}
	}

	res, err := r.catalog.Call(ctx, tool.Invocation{Name: call.Name, Arguments: args, CallID: call.ID})
	if err != nil {
		return tool.Failure(call.Name, err), err
	}
	if res.Name == "" {
		res.Name = call.Name
	}
	return res, nil
}

func routerPrompt(docs []rag.Document, realtime bool) string {
	var b strings.Builder
	b.WriteString("당신은 상권 분석 챗봇의 도구 선택 담당입니다.\n\n현재 상황:\n")
	if len(docs) == 0 {
		b.WriteString("로컬 문서 검색 결과 없음\n")
	} else {
		fmt.Fprintf(&b, "로컬 문서 %d개 검색 완료 (평균 유사도: %.2f)\n", len(docs), rag.MeanScore(docs))
		for _, d := range docs[:min(3, len(docs))] {
			fmt.Fprintf(&b, "  - %s (%.2f)\n", d.Source(), d.Score)
		}
	}
	if realtime {
		b.WriteString("질문에 최신 정보를 요구하는 표현이 있습니다.\n")
	}
	b.WriteString(`
판단 기준:
1. 도구가 필요 없는 경우: 로컬 문서로 충분히 답할 수 있는 질문, 일반 지식이나 개념 설명, 인사와 잡담. 이때는 도구를 호출하지 마세요.
2. 검색 도구가 필요한 경우: 최신 뉴스, 트렌드, 실시간 데이터처럼 현재 정보가 있어야 하는 질문.
3. 추출 도구가 필요한 경우: 이미 알려진 특정 URL의 상세 내용이 필요한 질문.

확실히 필요한 경우에만 도구를 선택하세요.`)
	return b.String()
}
