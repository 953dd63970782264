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

// Package model defines the LLM interface used by the answering pipeline.
//
//   - Unified GenerateContent method with stream boolean parameter
//   - Returns iter.Seq2[*Response, error] for both streaming and non-streaming
//   - Streaming uses Partial flag to distinguish chunks from aggregated response
package model

import (
	"context"
	"iter"
	"maps"
	"slices"

	"github.com/kadirpekel/sitewise/pkg/tool"
)

// LLM is a chat-completion model with optional function calling.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	Provider() Provider

	// GenerateContent produces responses for req.
	//
	// When stream=false it yields exactly one Response with Partial=false.
	// When stream=true it yields Partial=true deltas followed by one
	// aggregated Response with Partial=false. Breaking out of the range
	// loop releases the underlying stream.
	GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error]

	Close() error
}

type Provider string

const (
	ProviderOpenAI  Provider = "openai"
	ProviderUnknown Provider = "unknown"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// ToolChoice controls whether the model may call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

type Request struct {
	Messages []Message

	// Tools offered for function calling; empty means plain completion.
	Tools []tool.FunctionSchema

	ToolChoice ToolChoice

	Config *GenerateConfig
}

// Metadata key recorded with LLM metrics.
const MetadataPurpose = "purpose"

type GenerateConfig struct {
	Temperature *float64

	MaxTokens *int

	TopP *float64

	StopSequences []string

	Metadata map[string]string
}

// Clone returns a deep copy.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}

	clone := *c

	if c.Temperature != nil {
		temp := *c.Temperature
		clone.Temperature = &temp
	}
	if c.MaxTokens != nil {
		maxTok := *c.MaxTokens
		clone.MaxTokens = &maxTok
	}
	if c.TopP != nil {
		topP := *c.TopP
		clone.TopP = &topP
	}
	clone.StopSequences = slices.Clone(c.StopSequences)
	clone.Metadata = maps.Clone(c.Metadata)

	return &clone
}

// Purpose returns the purpose metadata, or "" when unset.
func (c *GenerateConfig) Purpose() string {
	if c == nil {
		return ""
	}
	return c.Metadata[MetadataPurpose]
}

type Response struct {
	Text string

	Partial bool

	ToolCalls []tool.Call

	Usage *Usage

	FinishReason FinishReason
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonContent   FinishReason = "content_filter"
	FinishReasonError     FinishReason = "error"
)

func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Ptr returns a pointer to v, for optional GenerateConfig fields.
func Ptr[T any](v T) *T {
	return &v
}
