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
	"iter"

	"github.com/kadirpekel/sitewise/pkg/model"
)

// Synthesizer generates the final answer from assembled messages.
type Synthesizer struct {
	llm         model.LLM
	temperature float64
	maxTokens   int
}

// NewSynthesizer returns a Synthesizer; non-positive settings use 0.7
// temperature and 1000 max tokens.
func NewSynthesizer(llm model.LLM, temperature float64, maxTokens int) *Synthesizer {
	if temperature <= 0 {
		temperature = 0.7
	}
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &Synthesizer{llm: llm, temperature: temperature, maxTokens: maxTokens}
}

func (s *Synthesizer) request(msgs []model.Message) *model.Request {
	return &model.Request{
		Messages: msgs,
		Config: &model.GenerateConfig{
			Temperature: model.Ptr(s.temperature),
			MaxTokens:   model.Ptr(s.maxTokens),
			Metadata:    map[string]string{model.MetadataPurpose: "answer"},
		},
	}
}

// Generate returns the complete answer and its token usage.
func (s *Synthesizer) Generate(ctx context.Context, msgs []model.Message) (string, *model.Usage, error) {
	var final *model.Response
	for resp, err := range s.llm.GenerateContent(ctx, s.request(msgs), false) {
		if err != nil {
			return "", nil, &GenerationError{Stage: "generate", Err: err}
		}
		final = resp
	}
	if final == nil {
		return "", nil, &GenerationError{Stage: "generate", Err: errors.New("model returned no response")}
	}
	return final.Text, final.Usage, nil
}

// Stream yields answer deltas. A failure is yielded once as a
// *GenerationError and ends the sequence. Stopping the range releases the
// model stream.
func (s *Synthesizer) Stream(ctx context.Context, msgs []model.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		streamed := false
		for resp, err := range s.llm.GenerateContent(ctx, s.request(msgs), true) {
			if err != nil {
				yield("", &GenerationError{Stage: "stream", Err: err})
				return
			}
			if resp.Partial {
				if resp.Text == "" {
					continue
				}
				streamed = true
				if !yield(resp.Text, nil) {
					return
				}
				continue
			}
			// Aggregated response; only surfaced when nothing was streamed.
			if !streamed && resp.Text != "" {
				if !yield(resp.Text, nil) {
					return
				}
			}
		}
	}
}
