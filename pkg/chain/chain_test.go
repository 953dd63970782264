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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/sitewise/pkg/config"
	"github.com/kadirpekel/sitewise/pkg/model"
	"github.com/kadirpekel/sitewise/pkg/rag"
	"github.com/kadirpekel/sitewise/pkg/testutils"
	"github.com/kadirpekel/sitewise/pkg/tool"
)

const answerText = "강남역 상권은 20대 유동인구가 많아 카페 창업에 유리합니다."

func gangnamDocs() []rag.Document {
	return []rag.Document{
		testutils.Doc("gangnam_report.pdf", "강남역 일평균 유동인구는 20만 명입니다.", 0.86),
		testutils.Doc("rent_2024.xlsx", "강남역 1층 평균 임대료는 평당 30만 원입니다.", 0.71),
	}
}

// routingLLM requests web_search whenever tools are offered and answers
// otherwise.
func routingLLM() *testutils.FakeLLM {
	return &testutils.FakeLLM{
		Chunks: []string{"강남역 상권은", " 유망합니다."},
		OnGenerate: func(req *model.Request) (*model.Response, error) {
			if len(req.Tools) > 0 {
				return testutils.ToolCallResponse(tool.Call{
					ID: "call_1", Name: "web_search", Arguments: `{"query":"2025 강남역 상권 트렌드"}`,
				}), nil
			}
			return &model.Response{Text: answerText, Usage: &model.Usage{TotalTokens: 42}}, nil
		},
	}
}

func webProvider() *testutils.FakeProvider {
	p := testutils.NewFakeProvider("tavily", "web_search", "web_extract")
	p.Results["web_search"] = map[string]any{"results": []any{
		map[string]any{"title": "강남 상권 회복", "url": "https://news.example.com/1"},
		map[string]any{"title": "신분당선 효과", "url": "https://news.example.com/2"},
		map[string]any{"title": "2025 임대료 동향", "url": "https://news.example.com/3"},
	}}
	return p
}

func assertResultShape(t *testing.T, res Result) {
	t.Helper()
	assert.NotNil(t, res.Sources)
	assert.NotNil(t, res.ToolResults)
	assert.NotNil(t, res.ToolsUsed)
	for _, name := range res.ToolsUsed {
		assert.Contains(t, res.ToolResults, name)
	}
}

func TestRun_GreetingSkipsTools(t *testing.T) {
	tests := []struct {
		name string
		docs []rag.Document
		want Strategy
	}{
		{name: "no docs", want: StrategyGeneral},
		{name: "with docs", docs: gangnamDocs(), want: StrategyLocalOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := routingLLM()
			c := New(Options{}, testutils.NewFakeRetriever(tt.docs...), llm,
				WithToolRouter(newTestRouter(t, llm, webProvider())))

			res := c.Run(context.Background(), Request{Query: "Hello"})

			assert.Equal(t, tt.want, res.Strategy)
			assert.Empty(t, llm.ToolCalls(), "small talk must not ask the model for tools")
			assert.Empty(t, res.ToolsUsed)
			assert.Equal(t, answerText, res.Answer)
			assertResultShape(t, res)
		})
	}
}

func TestRun_HybridWithWebSearch(t *testing.T) {
	llm := routingLLM()
	p := webProvider()
	docs := gangnamDocs()
	c := New(Options{}, testutils.NewFakeRetriever(docs...), llm, WithToolRouter(newTestRouter(t, llm, p)))

	res := c.Run(context.Background(), Request{Query: "2025 강남역 상권 트렌드 알려줘"})

	assert.Equal(t, StrategyHybrid, res.Strategy)
	assert.Equal(t, []string{"web_search"}, res.ToolsUsed)
	assert.Len(t, res.Sources, len(docs))
	assert.False(t, res.ToolResults["web_search"].Failed())
	assert.Equal(t, answerText, res.Answer)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 42, res.Usage.TotalTokens)
	assertResultShape(t, res)

	calls := llm.Calls()
	require.Len(t, calls, 2, "one routing call and one answer call")
	prompt := calls[1].Request.Messages[len(calls[1].Request.Messages)-1].Content
	assert.Contains(t, prompt, "[내부 참고 문서]")
	assert.Contains(t, prompt, "gangnam_report.pdf")
	assert.Contains(t, prompt, "신분당선 효과")
	assert.Equal(t, "2025 강남역 상권 트렌드", p.Calls()[0].Args["query"])
}

func TestRun_ToolTransportFailure(t *testing.T) {
	tests := []struct {
		name   string
		docs   []rag.Document
		want   Strategy
		header string
	}{
		{name: "no docs", want: StrategyGeneral},
		{name: "with docs", docs: gangnamDocs(), want: StrategyLocalOnly, header: "[참고 문서]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := routingLLM()
			p := webProvider()
			p.Errors["web_search"] = errors.New("dial tcp 10.0.0.1:443: connection refused")
			c := New(Options{}, testutils.NewFakeRetriever(tt.docs...), llm, WithToolRouter(newTestRouter(t, llm, p)))

			res := c.Run(context.Background(), Request{Query: "요즘 성수동 팝업스토어 동향"})

			assert.Equal(t, tt.want, res.Strategy)
			assert.Equal(t, []string{"web_search"}, res.ToolsUsed)
			assert.Contains(t, res.ToolResults["web_search"].Err, "connection refused")
			assert.Equal(t, answerText, res.Answer)
			assertResultShape(t, res)

			calls := llm.Calls()
			require.Len(t, calls, 2)
			msgs := calls[1].Request.Messages
			prompt := msgs[len(msgs)-1].Content
			assert.NotContains(t, prompt, "웹 검색 결과]")
			assert.NotContains(t, prompt, "(실패:")
			if tt.header != "" {
				assert.Contains(t, prompt, tt.header)
			} else {
				assert.Equal(t, "요즘 성수동 팝업스토어 동향", prompt)
			}
		})
	}
}

func TestRun_PartialToolFailureKeepsHybrid(t *testing.T) {
	llm := &testutils.FakeLLM{OnGenerate: func(req *model.Request) (*model.Response, error) {
		if len(req.Tools) > 0 {
			return testutils.ToolCallResponse(
				tool.Call{ID: "call_1", Name: "web_search", Arguments: `{"query":"강남역 임대료"}`},
				tool.Call{ID: "call_2", Name: "web_extract", Arguments: `{"urls":["https://news.example.com/1"]}`},
			), nil
		}
		return &model.Response{Text: answerText}, nil
	}}
	p := webProvider()
	p.Errors["web_extract"] = errors.New("upstream timeout")
	c := New(Options{}, testutils.NewFakeRetriever(gangnamDocs()...), llm, WithToolRouter(newTestRouter(t, llm, p)))

	res := c.Run(context.Background(), Request{Query: "요즘 강남역 임대료 시세"})

	assert.Equal(t, StrategyHybrid, res.Strategy)
	assert.Equal(t, []string{"web_search", "web_extract"}, res.ToolsUsed)
	assert.True(t, res.ToolResults["web_extract"].Failed())
	assert.False(t, res.ToolResults["web_search"].Failed())

	msgs := llm.Calls()[1].Request.Messages
	assert.Contains(t, msgs[len(msgs)-1].Content, "(실패: ")
}

func TestRun_MalformedRegistryDisablesTools(t *testing.T) {
	llm := routingLLM()
	loads := 0
	loader := func(ctx context.Context) (*Router, error) {
		loads++
		if _, err := config.ParseProviderRegistry([]byte(`{"servers": {}}`)); err != nil {
			return nil, err
		}
		t.Fatal("registry without mcpServers must not parse")
		return nil, nil
	}

	var configErr *config.ConfigError
	_, err := config.ParseProviderRegistry([]byte(`{"servers": {}}`))
	require.ErrorAs(t, err, &configErr)

	tests := []struct {
		docs []rag.Document
		want Strategy
	}{
		{docs: gangnamDocs(), want: StrategyLocalOnly},
		{want: StrategyGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			loads = 0
			c := New(Options{}, testutils.NewFakeRetriever(tt.docs...), llm, WithToolLoader(loader))

			for range 2 {
				res := c.Run(context.Background(), Request{Query: "2025 강남역 최신 상권 트렌드"})
				assert.Equal(t, tt.want, res.Strategy)
				assert.Equal(t, answerText, res.Answer)
				assert.Empty(t, res.ToolsUsed)
			}
			assert.Equal(t, 1, loads, "a failed loader is never retried")
			assert.Nil(t, c.Router())
			assert.Equal(t, 0, c.Warmup(context.Background()))
		})
	}
	assert.Empty(t, llm.ToolCalls())
}

func TestRun_ExpandedQueryAndTopK(t *testing.T) {
	docs := append(gangnamDocs(), testutils.Doc("c", "c", 0.5), testutils.Doc("d", "d", 0.4))
	retriever := testutils.NewFakeRetriever(docs...)
	c := New(Options{}, retriever, testutils.NewFakeLLM(answerText))

	history := []Turn{
		{Role: RoleUser, Content: "강남역"},
		{Role: RoleAssistant, Content: "네"},
		{Role: RoleUser, Content: "카페"},
	}
	res := c.Run(context.Background(), Request{Query: "임대료는?", History: history})
	assert.Len(t, res.Sources, DefaultTopK)
	assert.Equal(t, "강남역 카페 임대료는?", retriever.Queries()[0])

	res = c.Run(context.Background(), Request{Query: "임대료는?", TopK: 1})
	assert.Len(t, res.Sources, 1)
}

func TestRun_RetrievalFailure(t *testing.T) {
	retriever := testutils.NewFakeRetriever()
	retriever.Err = errors.New("vector store unavailable")
	c := New(Options{}, retriever, testutils.NewFakeLLM(answerText))

	res := c.Run(context.Background(), Request{Query: "강남역 상권"})
	assert.Equal(t, StrategyGeneral, res.Strategy)
	assert.Equal(t, answerText, res.Answer)
	assertResultShape(t, res)
}

func TestRun_GenerationFailure(t *testing.T) {
	llm := &testutils.FakeLLM{OnGenerate: func(*model.Request) (*model.Response, error) {
		return nil, errors.New("insufficient_quota")
	}}
	c := New(Options{}, testutils.NewFakeRetriever(gangnamDocs()...), llm)

	res := c.Run(context.Background(), Request{Query: "강남역 상권"})
	assert.Equal(t, apologyPrefix+"insufficient_quota", res.Answer)
	assert.Equal(t, StrategyLocalOnly, res.Strategy)
	assert.Nil(t, res.Usage)
}

// directLLM answers the routing call without tools and the answer call
// with a distinct text.
func directLLM() *testutils.FakeLLM {
	return &testutils.FakeLLM{
		Chunks: []string{"상권이란", " 상업 활동의 공간적 범위입니다."},
		OnGenerate: func(req *model.Request) (*model.Response, error) {
			if len(req.Tools) > 0 {
				return &model.Response{Text: "라우터가 직접 쓴 답변"}, nil
			}
			return &model.Response{Text: answerText, Usage: &model.Usage{TotalTokens: 42}}, nil
		},
	}
}

func TestRun_DirectAnswer(t *testing.T) {
	llm := directLLM()
	c := New(Options{}, testutils.NewFakeRetriever(), llm,
		WithToolRouter(newTestRouter(t, llm, webProvider())))

	res := c.Run(context.Background(), Request{Query: "상권이라는 개념을 설명해줘"})
	assert.Equal(t, StrategyGeneral, res.Strategy)
	assert.Equal(t, answerText, res.Answer)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 42, res.Usage.TotalTokens)

	calls := llm.Calls()
	require.Len(t, calls, 2, "GENERAL is answered by the synthesizer")
	assert.Empty(t, calls[1].Request.Tools)
	msgs := calls[1].Request.Messages
	assert.Contains(t, msgs[0].Content, strategyPrompts[StrategyGeneral])
	assert.Equal(t, "상권이라는 개념을 설명해줘", msgs[len(msgs)-1].Content)
}

func TestWarmupAndClose(t *testing.T) {
	p := webProvider()
	llm := routingLLM()
	built := 0
	c := New(Options{}, testutils.NewFakeRetriever(), llm, WithToolLoader(func(ctx context.Context) (*Router, error) {
		built++
		return newTestRouter(t, llm, p), nil
	}))

	assert.Equal(t, 2, c.Warmup(context.Background()))
	assert.Equal(t, 2, c.Warmup(context.Background()))
	assert.Equal(t, 1, built)
	assert.Equal(t, 1, p.ListCalls())
	require.NotNil(t, c.Router())

	require.NoError(t, c.Close())
	assert.True(t, p.Closed())
}

func collect(seq func(func(Event) bool)) []Event {
	var events []Event
	for e := range seq {
		events = append(events, e)
	}
	return events
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// assertOrdering checks that context events precede every answer chunk and
// that exactly one terminal event closes the stream.
func assertOrdering(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)
	seenChunk := false
	terminals := 0
	for i, e := range events {
		switch e.Type {
		case EventSources, EventToolResults, EventToolsUsed:
			assert.False(t, seenChunk, "event %d (%s) after an answer chunk", i, e.Type)
		case EventAnswerChunk:
			seenChunk = true
		}
		if e.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.True(t, events[len(events)-1].Terminal())
}

func TestStreamRun_Hybrid(t *testing.T) {
	llm := routingLLM()
	c := New(Options{}, testutils.NewFakeRetriever(gangnamDocs()...), llm,
		WithToolRouter(newTestRouter(t, llm, webProvider())))

	events := collect(c.StreamRun(context.Background(), Request{Query: "2025 강남역 상권 트렌드 알려줘"}))
	assertOrdering(t, events)

	assert.Equal(t, []EventType{
		EventSources, EventToolResults, EventToolsUsed, EventAnswerChunk, EventAnswerChunk, EventDone,
	}, eventTypes(events))
	assert.Len(t, events[0].Sources, 2)
	assert.Contains(t, events[1].ToolResults, "web_search")
	assert.Equal(t, []string{"web_search"}, events[2].ToolsUsed)
	assert.Equal(t, "강남역 상권은 유망합니다.", events[3].Chunk+events[4].Chunk)
	assert.Equal(t, StrategyHybrid, events[5].Strategy)
}

func TestStreamRun_NoTools(t *testing.T) {
	llm := &testutils.FakeLLM{Text: answerText, Chunks: []string{"a", "b", "c"}}
	c := New(Options{}, testutils.NewFakeRetriever(), llm)

	events := collect(c.StreamRun(context.Background(), Request{Query: "Hello"}))
	assertOrdering(t, events)
	assert.Equal(t, []EventType{EventSources, EventAnswerChunk, EventAnswerChunk, EventAnswerChunk, EventDone}, eventTypes(events))
	assert.NotNil(t, events[0].Sources)
	assert.Empty(t, events[0].Sources)
	assert.Equal(t, StrategyGeneral, events[4].Strategy)
}

func TestStreamRun_DirectAnswer(t *testing.T) {
	llm := directLLM()
	c := New(Options{}, testutils.NewFakeRetriever(), llm,
		WithToolRouter(newTestRouter(t, llm, webProvider())))

	events := collect(c.StreamRun(context.Background(), Request{Query: "상권이라는 개념을 설명해줘"}))
	assert.Equal(t, []EventType{EventSources, EventAnswerChunk, EventAnswerChunk, EventDone}, eventTypes(events))
	assert.Equal(t, "상권이란", events[1].Chunk)
	assert.Equal(t, " 상업 활동의 공간적 범위입니다.", events[2].Chunk)
	assert.Equal(t, StrategyGeneral, events[3].Strategy)
	for _, ev := range events {
		assert.NotContains(t, ev.Chunk, "라우터가 직접 쓴 답변")
	}
	assert.Len(t, llm.Calls(), 2)
}

func TestStreamRun_ToolFailureFallsBack(t *testing.T) {
	llm := routingLLM()
	p := webProvider()
	p.Errors["web_search"] = errors.New("dial tcp 10.0.0.1:443: connection refused")
	c := New(Options{}, testutils.NewFakeRetriever(gangnamDocs()...), llm, WithToolRouter(newTestRouter(t, llm, p)))

	events := collect(c.StreamRun(context.Background(), Request{Query: "요즘 성수동 팝업스토어 동향"}))
	assertOrdering(t, events)
	assert.Equal(t, []EventType{EventSources, EventToolResults, EventToolsUsed, EventAnswerChunk, EventAnswerChunk, EventDone}, eventTypes(events))
	assert.True(t, events[1].ToolResults["web_search"].Failed())
	assert.Equal(t, []string{"web_search"}, events[2].ToolsUsed)
	assert.Equal(t, StrategyLocalOnly, events[len(events)-1].Strategy)
}

func TestStreamRun_GenerationError(t *testing.T) {
	llm := &testutils.FakeLLM{Chunks: []string{"부분"}, StreamErr: errors.New("stream reset")}
	c := New(Options{}, testutils.NewFakeRetriever(gangnamDocs()...), llm)

	events := collect(c.StreamRun(context.Background(), Request{Query: "강남역 상권"}))
	assertOrdering(t, events)

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, apologyPrefix+"stream reset", last.Error)
	var genErr *GenerationError
	assert.ErrorAs(t, last.Err, &genErr)
}

func TestStreamRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llm := &testutils.FakeLLM{Chunks: []string{"하나", "둘", "셋"}}
	llm.BeforeChunk = func(i int) {
		if i == 1 {
			cancel()
		}
	}
	c := New(Options{}, testutils.NewFakeRetriever(gangnamDocs()...), llm)

	events := collect(c.StreamRun(ctx, Request{Query: "강남역 상권"}))
	assertOrdering(t, events)
	assert.Equal(t, []EventType{EventSources, EventAnswerChunk, EventError}, eventTypes(events))

	last := events[len(events)-1]
	assert.ErrorIs(t, last.Err, context.Canceled)
	assert.Equal(t, context.Canceled.Error(), last.Error)
}

func TestStreamRun_ConsumerBreak(t *testing.T) {
	llm := &testutils.FakeLLM{Chunks: []string{"하나", "둘", "셋"}}
	c := New(Options{}, testutils.NewFakeRetriever(), llm)

	var got []Event
	for e := range c.StreamRun(context.Background(), Request{Query: "강남역 상권"}) {
		got = append(got, e)
		if e.Type == EventAnswerChunk {
			break
		}
	}

	assert.Equal(t, []EventType{EventSources, EventAnswerChunk}, eventTypes(got))
	assert.True(t, llm.Abandoned(), "model stream must be released")
	assert.False(t, strings.Contains(got[1].Chunk, "둘"))
}
