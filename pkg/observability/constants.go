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

const (
	AttrServiceName    = "service.name"
	AttrToolName       = "tool.name"
	AttrToolProvider   = "tool.provider"
	AttrToolCount      = "tool.count"
	AttrLLMModel       = "llm.model"
	AttrLLMPurpose     = "llm.purpose"
	AttrLLMStream      = "llm.stream"
	AttrLLMTokensIn    = "llm.tokens.input"
	AttrLLMTokensOut   = "llm.tokens.output"
	AttrRetrievalTopK  = "retrieval.top_k"
	AttrRetrievalDocs  = "retrieval.docs"
	AttrChainStrategy  = "chain.strategy"
	AttrChainStreaming = "chain.streaming"
	AttrChainRealtime  = "chain.realtime"
	AttrRequestID      = "request.id"

	SpanChainRun      = "chain.run"
	SpanChainStream   = "chain.stream_run"
	SpanRetrieval     = "chain.retrieval"
	SpanToolRouting   = "chain.tool_routing"
	SpanToolDiscovery = "tools.discovery"
	SpanToolExecution = "tools.execution"
	SpanLLMRequest    = "llm.request"
	SpanHTTPRequest   = "http.request"

	DefaultServiceName = "sitewise"
	tracerName         = "github.com/kadirpekel/sitewise"
)
