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
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

// WebSearchArgs are the parameters of the fallback web_search tool.
type WebSearchArgs struct {
	Query       string `json:"query" jsonschema:"required" jsonschema_description:"Search query"`
	SearchDepth string `json:"search_depth,omitempty" jsonschema:"enum=basic,enum=advanced,default=basic" jsonschema_description:"Search depth"`
	MaxResults  int    `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=10,default=5" jsonschema_description:"Maximum number of results"`
	Topic       string `json:"topic,omitempty" jsonschema:"enum=general,enum=news,default=general" jsonschema_description:"Search topic"`
}

// WebExtractArgs are the parameters of the fallback web_extract tool.
type WebExtractArgs struct {
	URLs []string `json:"urls" jsonschema:"required" jsonschema_description:"URLs to extract content from"`
}

var (
	fallbackOnce    sync.Once
	fallbackSchemas []FunctionSchema
)

// FallbackCatalog returns the static web_search and web_extract schemas
// used when discovery yields nothing. Callers get their own copy.
func FallbackCatalog() []FunctionSchema {
	fallbackOnce.Do(func() {
		fallbackSchemas = []FunctionSchema{
			{
				Name:        "web_search",
				Description: "Search the web for current information such as commercial district trends, rents and openings.",
				Parameters:  reflectParams(&WebSearchArgs{}),
			},
			{
				Name:        "web_extract",
				Description: "Extract the readable content of the given web pages.",
				Parameters:  reflectParams(&WebExtractArgs{}),
			},
		}
	})

	out := make([]FunctionSchema, len(fallbackSchemas))
	for i, s := range fallbackSchemas {
		out[i] = EnhanceDescription(s)
	}
	return out
}

// FallbackDescriptors returns the fallback catalog as descriptors owned by provider.
func FallbackDescriptors(provider string) []Descriptor {
	schemas := FallbackCatalog()
	out := make([]Descriptor, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, Descriptor{
			Provider:    provider,
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.Parameters,
		})
	}
	return out
}

func reflectParams(v any) map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	params := map[string]any{
		"type":       "object",
		"properties": raw["properties"],
	}
	if required, ok := raw["required"]; ok {
		params["required"] = required
	}
	return params
}
