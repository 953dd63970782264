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
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/kadirpekel/sitewise/pkg/model"
	"github.com/kadirpekel/sitewise/pkg/rag"
	"github.com/kadirpekel/sitewise/pkg/tool"
	"github.com/kadirpekel/sitewise/pkg/utils"
)

// DefaultMaxPayloadTokens bounds each rendered tool payload.
const DefaultMaxPayloadTokens = 1500

const basePrompt = `당신은 상권 분석과 창업 컨설팅을 돕는 전문가이자 친근한 대화 상대입니다.

답변 원칙:
1. 상권, 입지, 부동산, 창업 관련 질문에는 아래 근거 지침에 따라 구체적이고 실용적으로 답하세요.
2. 인사, 감사, 잡담에는 참고 자료와 상관없이 자연스럽고 따뜻하게 응답하세요. 상권 정보를 억지로 끼워 넣지 마세요.

출력 형식:
- 마크다운 기호(###, ***, ---, ===, ~~~)를 쓰지 마세요.
- 목록은 "-" 또는 숫자로만 표시하세요.
- 문단 사이에는 빈 줄 하나만 두세요.
- 읽기 편한 자연스러운 문장으로 쓰세요.`

var strategyPrompts = map[Strategy]string{
	StrategyLocalOnly: `근거 지침:
제공된 참고 문서를 바탕으로 답하고, 필요하면 출처 문서를 언급하세요.
참고 문서에 없는 내용은 지어내지 말고 "제공된 자료에는 해당 정보가 없습니다"라고 솔직하게 말하세요.`,

	StrategyToolOnly: `근거 지침:
웹 검색 결과를 바탕으로 최신 정보를 반영해 답하세요.
주장마다 웹 검색 결과에서 온 정보임을 밝히고, 가능하면 출처 URL을 함께 적으세요.`,

	StrategyHybrid: `근거 지침:
내부 참고 문서와 최신 웹 검색 결과를 함께 활용하세요.
각 정보가 내부 자료에서 왔는지 웹 검색에서 왔는지 분명히 구분해서 말하세요.`,

	StrategyGeneral: `근거 지침:
이번 질문에는 참고 문서나 웹 검색 결과가 없습니다.
일반적인 지식으로 답하되, 문서나 검색 결과를 근거로 한 것처럼 말하지 마세요.`,
}

// PromptInput is everything BuildMessages needs.
type PromptInput struct {
	Strategy Strategy
	Query    string
	History  []Turn
	Docs     []rag.Document

	// DocContext is the retriever's rendering of Docs; empty falls back to
	// rag.FormatForPrompt.
	DocContext string

	ToolResults map[string]tool.Result
	ToolsUsed   []string

	// Counter truncates tool payloads; nil estimates tokens from length.
	Counter          *utils.TokenCounter
	MaxPayloadTokens int
}

// BuildMessages assembles the answer prompt: system message, the full
// history, then the user message with the evidence blocks of the strategy.
func BuildMessages(in PromptInput) []model.Message {
	msgs := make([]model.Message, 0, len(in.History)+2)
	msgs = append(msgs, model.Message{
		Role:    model.RoleSystem,
		Content: basePrompt + "\n\n" + strategyPrompts[in.Strategy],
	})
	msgs = append(msgs, historyMessages(in.History)...)
	msgs = append(msgs, model.Message{Role: model.RoleUser, Content: userPrompt(in)})
	return msgs
}

func userPrompt(in PromptInput) string {
	docs := in.DocContext
	if docs == "" {
		docs = rag.FormatForPrompt(in.Docs)
	}

	var b strings.Builder
	switch in.Strategy {
	case StrategyLocalOnly:
		fmt.Fprintf(&b, "[참고 문서]\n%s\n\n[사용자 질문]\n%s\n\n위 참고 문서를 바탕으로 사용자의 질문에 답변해주세요.", docs, in.Query)
	case StrategyToolOnly:
		fmt.Fprintf(&b, "[웹 검색 결과]\n%s\n\n[사용자 질문]\n%s\n\n위 웹 검색 결과를 바탕으로 사용자의 질문에 답변해주세요.", toolContext(in), in.Query)
	case StrategyHybrid:
		fmt.Fprintf(&b, "[내부 참고 문서]\n%s\n\n[최신 웹 검색 결과]\n%s\n\n[사용자 질문]\n%s\n\n위의 내부 참고 문서와 최신 웹 검색 결과를 종합하여 사용자의 질문에 답변해주세요.", docs, toolContext(in), in.Query)
	default:
		b.WriteString(in.Query)
	}
	return b.String()
}

// toolContext renders each result as indented JSON under its tool name,
// in ToolsUsed order followed by any remaining names sorted.
func toolContext(in PromptInput) string {
	limit := in.MaxPayloadTokens
	if limit <= 0 {
		limit = DefaultMaxPayloadTokens
	}

	names := slices.Clone(in.ToolsUsed)
	var rest []string
	for name := range in.ToolResults {
		if !slices.Contains(names, name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)

	blocks := make([]string, 0, len(names))
	for _, name := range names {
		res, ok := in.ToolResults[name]
		if !ok {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", name, renderPayload(res, in.Counter, limit)))
	}
	return strings.Join(blocks, "\n\n")
}

func renderPayload(res tool.Result, counter *utils.TokenCounter, limit int) string {
	if res.Failed() {
		return fmt.Sprintf("(실패: %s)", res.Err)
	}
	data, err := json.MarshalIndent(res.Payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("(실패: %v)", err)
	}
	text, truncated := counter.Truncate(string(data), limit)
	if truncated {
		text += "\n...(생략)"
	}
	return text
}

func historyMessages(history []Turn) []model.Message {
	msgs := make([]model.Message, 0, len(history))
	for _, t := range history {
		role := model.RoleUser
		if t.Role == RoleAssistant {
			role = model.RoleAssistant
		}
		msgs = append(msgs, model.Message{Role: role, Content: t.Content})
	}
	return msgs
}
