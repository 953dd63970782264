package testutils

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/kadirpekel/sitewise/pkg/model"
	"github.com/kadirpekel/sitewise/pkg/tool"
)

// LLMCall captures one GenerateContent invocation.
type LLMCall struct {
	Request *model.Request
	Stream  bool
}

// FakeLLM is a scripted model.LLM.
//
// OnGenerate decides the aggregated response for every call; when it is nil
// the model answers Text. Streaming calls yield Chunks as partials (or the
// whole response text as one partial) and then the aggregated response.
type FakeLLM struct {
	Text       string
	OnGenerate func(req *model.Request) (*model.Response, error)

	Chunks    []string
	StreamErr error

	// BeforeChunk runs before partial i is yielded.
	BeforeChunk func(i int)

	mu        sync.Mutex
	calls     []LLMCall
	abandoned bool
}

// NewFakeLLM returns a model that always answers text.
func NewFakeLLM(text string) *FakeLLM {
	return &FakeLLM{Text: text}
}

// ToolCallResponse builds a response requesting the given calls.
func ToolCallResponse(calls ...tool.Call) *model.Response {
	return &model.Response{ToolCalls: calls, FinishReason: model.FinishReasonToolCalls}
}

func (f *FakeLLM) Name() string { return "fake-llm" }

func (f *FakeLLM) Provider() model.Provider { return model.ProviderUnknown }

func (f *FakeLLM) Close() error { return nil }

func (f *FakeLLM) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		f.mu.Lock()
		f.calls = append(f.calls, LLMCall{Request: req, Stream: stream})
		f.mu.Unlock()

		resp, err := f.respond(req)
		if err != nil {
			yield(nil, err)
			return
		}
		if !stream {
			yield(resp, nil)
			return
		}

		chunks := f.Chunks
		if len(chunks) == 0 && resp.Text != "" {
			chunks = []string{resp.Text}
		}
		for i, c := range chunks {
			if f.BeforeChunk != nil {
				f.BeforeChunk(i)
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(&model.Response{Text: c, Partial: true}, nil) {
				f.mu.Lock()
				f.abandoned = true
				f.mu.Unlock()
				return
			}
		}
		if f.StreamErr != nil {
			yield(nil, f.StreamErr)
			return
		}

		final := *resp
		final.Text = strings.Join(chunks, "")
		yield(&final, nil)
	}
}

func (f *FakeLLM) respond(req *model.Request) (*model.Response, error) {
	if f.OnGenerate != nil {
		resp, err := f.OnGenerate(req)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			resp = &model.Response{}
		}
		return resp, nil
	}
	return &model.Response{
		Text:         f.Text,
		FinishReason: model.FinishReasonStop,
		Usage:        &model.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// Calls returns every recorded invocation.
func (f *FakeLLM) Calls() []LLMCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LLMCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// ToolCalls returns the invocations that offered tools.
func (f *FakeLLM) ToolCalls() []LLMCall {
	var out []LLMCall
	for _, c := range f.Calls() {
		if len(c.Request.Tools) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Abandoned reports whether a consumer stopped a stream early.
func (f *FakeLLM) Abandoned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.abandoned
}
