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

// Package openai provides an OpenAI chat-completions LLM implementation.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sort"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kadirpekel/sitewise/pkg/model"
	"github.com/kadirpekel/sitewise/pkg/observability"
	"github.com/kadirpekel/sitewise/pkg/tool"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 1000
	defaultTimeout   = 120 * time.Second
)

// Config configures the OpenAI client.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
	BaseURL     string
	Timeout     time.Duration

	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client

	Metrics observability.Metrics
}

// Client is an OpenAI LLM over the chat-completions API.
type Client struct {
	api         *goopenai.Client
	modelName   string
	maxTokens   int
	temperature *float64
	metrics     observability.Metrics
}

// New creates a new OpenAI client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	apiCfg.HTTPClient = httpClient

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}

	return &Client{
		api:         goopenai.NewClientWithConfig(apiCfg),
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		metrics:     metrics,
	}, nil
}

// Name returns the model identifier.
func (c *Client) Name() string {
	return c.modelName
}

// Provider returns the provider type.
func (c *Client) Provider() model.Provider {
	return model.ProviderOpenAI
}

// GenerateContent produces responses for the given request.
//
// When stream=false:
//   - Yields exactly one Response with complete content, Partial=false
//
// When stream=true:
//   - Yields multiple partial Responses (Partial=true) for real-time UI updates
//   - Finally yields aggregated Response (Partial=false)
func (c *Client) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	if stream {
		return c.generateStream(ctx, req)
	}

	return func(yield func(*model.Response, error) bool) {
		resp, err := c.generate(ctx, req)
		yield(resp, err)
	}
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

func (c *Client) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanLLMRequest)
	start := time.Now()

	apiResp, err := c.api.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		err = fmt.Errorf("chat completion failed: %w", err)
		c.record(ctx, req, start, nil, err)
		observability.EndSpan(span, err)
		return nil, err
	}
	if len(apiResp.Choices) == 0 {
		err = errors.New("no choices in response")
		c.record(ctx, req, start, nil, err)
		observability.EndSpan(span, err)
		return nil, err
	}

	choice := apiResp.Choices[0]
	resp := &model.Response{
		Text:         choice.Message.Content,
		FinishReason: model.FinishReason(choice.FinishReason),
		Usage:        convertUsage(apiResp.Usage),
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, tool.Call{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	c.record(ctx, req, start, resp.Usage, nil)
	observability.EndSpan(span, nil)
	return resp, nil
}

func (c *Client) generateStream(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		ctx, span := observability.StartSpan(ctx, observability.SpanLLMRequest)
		start := time.Now()

		stream, err := c.api.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
		if err != nil {
			err = fmt.Errorf("chat completion stream failed: %w", err)
			c.record(ctx, req, start, nil, err)
			observability.EndSpan(span, err)
			yield(nil, err)
			return
		}
		defer stream.Close()

		var (
			text         strings.Builder
			calls        = map[int]*tool.Call{}
			usage        *model.Usage
			finishReason model.FinishReason
		)

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				err = fmt.Errorf("stream read error: %w", err)
				c.record(ctx, req, start, nil, err)
				observability.EndSpan(span, err)
				yield(nil, err)
				return
			}

			if chunk.Usage != nil {
				usage = convertUsage(*chunk.Usage)
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finishReason = model.FinishReason(choice.FinishReason)
			}
			for i, tc := range choice.Delta.ToolCalls {
				idx := i
				if tc.Index != nil {
					idx = *tc.Index
				}
				call, ok := calls[idx]
				if !ok {
					call = &tool.Call{}
					calls[idx] = call
				}
				if tc.ID != "" {
					call.ID = tc.ID
				}
				if tc.Function.Name != "" {
					call.Name = tc.Function.Name
				}
				call.Arguments += tc.Function.Arguments
			}

			if choice.Delta.Content == "" {
				continue
			}
			text.WriteString(choice.Delta.Content)
			if !yield(&model.Response{Text: choice.Delta.Content, Partial: true}, nil) {
				c.record(ctx, req, start, usage, nil)
				observability.EndSpan(span, nil)
				return
			}
		}

		final := &model.Response{
			Text:         text.String(),
			Usage:        usage,
			FinishReason: finishReason,
			ToolCalls:    orderedCalls(calls),
		}
		c.record(ctx, req, start, usage, nil)
		observability.EndSpan(span, nil)
		yield(final, nil)
	}
}

func (c *Client) buildRequest(req *model.Request, stream bool) goopenai.ChatCompletionRequest {
	apiReq := goopenai.ChatCompletionRequest{
		Model:     c.modelName,
		MaxTokens: c.maxTokens,
		Stream:    stream,
	}
	if c.temperature != nil {
		apiReq.Temperature = float32(*c.temperature)
	}
	if stream {
		apiReq.StreamOptions = &goopenai.StreamOptions{IncludeUsage: true}
	}

	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			apiReq.Temperature = float32(*cfg.Temperature)
		}
		if cfg.MaxTokens != nil {
			apiReq.MaxTokens = *cfg.MaxTokens
		}
		if cfg.TopP != nil {
			apiReq.TopP = float32(*cfg.TopP)
		}
		apiReq.Stop = cfg.StopSequences
	}

	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, goopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if len(apiReq.Tools) > 0 && req.ToolChoice != "" {
		apiReq.ToolChoice = string(req.ToolChoice)
	}

	return apiReq
}

func (c *Client) record(ctx context.Context, req *model.Request, start time.Time, usage *model.Usage, err error) {
	in, out := 0, 0
	if usage != nil {
		in, out = usage.PromptTokens, usage.CompletionTokens
	}
	c.metrics.RecordLLMCall(ctx, c.modelName, req.Config.Purpose(), time.Since(start), in, out, err)
}

func convertUsage(u goopenai.Usage) *model.Usage {
	if u.TotalTokens == 0 && u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return nil
	}
	return &model.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func orderedCalls(calls map[int]*tool.Call) []tool.Call {
	if len(calls) == 0 {
		return nil
	}
	idx := make([]int, 0, len(calls))
	for i := range calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]tool.Call, 0, len(idx))
	for _, i := range idx {
		out = append(out, *calls[i])
	}
	return out
}

var _ model.LLM = (*Client)(nil)
