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

// Package chain is the answering pipeline of sitewise.
//
// A request flows through these stages:
//
//	query ─► ExpandQuery ─► Retriever.Search ─► Router.SelectAndExecute ─► SelectStrategy ─► Synthesizer
//	                                              │                                           │
//	                              Catalog (discovery, dispatch)                 Result or Event stream
//
// A Chain is built once at startup and shared by all requests. The only
// shared mutable state is the Router's tool cache, populated once on first
// use.
package chain

import (
	"github.com/kadirpekel/sitewise/pkg/model"
	"github.com/kadirpekel/sitewise/pkg/rag"
	"github.com/kadirpekel/sitewise/pkg/tool"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Strategy is the evidence combination used to answer.
type Strategy int

const (
	// StrategyGeneral answers from the model's own knowledge.
	StrategyGeneral Strategy = iota
	// StrategyLocalOnly answers from retrieved documents.
	StrategyLocalOnly
	// StrategyToolOnly answers from tool results.
	StrategyToolOnly
	// StrategyHybrid answers from documents and tool results together.
	StrategyHybrid
)

func (s Strategy) String() string {
	switch s {
	case StrategyLocalOnly:
		return "LOCAL_ONLY"
	case StrategyToolOnly:
		return "TOOL_ONLY"
	case StrategyHybrid:
		return "HYBRID"
	default:
		return "GENERAL"
	}
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Request is one question to answer.
type Request struct {
	Query   string
	History []Turn
	// TopK bounds the retrieved documents; zero uses the chain default.
	TopK int
}

// Result is the outcome of Chain.Run. Sources, ToolResults and ToolsUsed
// are never nil. Every name in ToolsUsed is a key of ToolResults.
type Result struct {
	Answer      string                 `json:"answer"`
	Sources     []rag.Document         `json:"sources"`
	ToolResults map[string]tool.Result `json:"tool_results"`
	ToolsUsed   []string               `json:"tools_used"`
	Strategy    Strategy               `json:"strategy"`
	Usage       *model.Usage           `json:"usage,omitempty"`
}

// EventType tags a stream event.
type EventType string

const (
	EventSources     EventType = "sources"
	EventToolResults EventType = "tool_results"
	EventToolsUsed   EventType = "tools_used"
	EventAnswerChunk EventType = "answer_chunk"
	EventError       EventType = "error"
	EventDone        EventType = "done"
)

// Event is one element of Chain.StreamRun. Only the fields of its Type are
// set.
type Event struct {
	Type        EventType
	Sources     []rag.Document
	ToolResults map[string]tool.Result
	ToolsUsed   []string
	Chunk       string

	// Error is the user-facing message of an error event; Err is the cause.
	Error string
	Err   error

	// Strategy is set on the done event.
	Strategy Strategy
}

// Terminal reports whether e closes the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
