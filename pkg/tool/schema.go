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

package tool

import (
	"maps"
	"strings"
)

const (
	searchGuidance = `

WHEN TO USE:
- The question needs current information (prices, rents, openings, closures, news)
- The question names a recent period (this year, this month, 2025)
- Local documents do not cover the topic or are clearly outdated

WHEN NOT TO USE:
- Greetings, thanks or small talk
- Questions the local documents already answer well
- General background knowledge that does not change over time`

	extractGuidance = `

WHEN TO USE:
- The user gives one or more specific URLs and wants their content
- A search result needs to be read in full to answer

WHEN NOT TO USE:
- No concrete URL is known
- A search snippet already answers the question`
)

var descriptionGuidance = map[string]string{
	"web_search":     searchGuidance,
	"tavily_search":  searchGuidance,
	"web_extract":    extractGuidance,
	"tavily_extract": extractGuidance,
}

// ToFunctionSchema maps a descriptor to the function-calling shape.
func ToFunctionSchema(d Descriptor) FunctionSchema {
	params := d.InputSchema
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return FunctionSchema{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  params,
	}
}

// EnhanceDescription appends usage guidance for well-known search and
// extraction tools. Unknown names and already enhanced schemas come back
// unchanged. The input is never modified.
func EnhanceDescription(s FunctionSchema) FunctionSchema {
	out := s
	if s.Parameters != nil {
		out.Parameters = maps.Clone(s.Parameters)
	}

	guidance, ok := descriptionGuidance[s.Name]
	if !ok || strings.HasSuffix(out.Description, guidance) {
		return out
	}
	out.Description += guidance
	return out
}
