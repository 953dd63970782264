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

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kadirpekel/sitewise/pkg/model"
	"github.com/kadirpekel/sitewise/pkg/tool"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without API key")
	}
	c, err := New(Config{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != defaultModel || c.Provider() != model.ProviderOpenAI {
		t.Errorf("defaults = %s/%s", c.Name(), c.Provider())
	}
}

func TestGenerateContent_ToolCalls(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "web_search", "arguments": "{\"query\":\"강남 상권\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 50, "completion_tokens": 10, "total_tokens": 60}
		}`)
	})

	req := &model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "route"},
			{Role: model.RoleUser, Content: "2025 강남 상권 트렌드"},
		},
		Tools:      tool.FallbackCatalog(),
		ToolChoice: model.ToolChoiceAuto,
		Config:     &model.GenerateConfig{Temperature: model.Ptr(0.3)},
	}

	var responses []*model.Response
	for resp, err := range client.GenerateContent(context.Background(), req, false) {
		if err != nil {
			t.Fatalf("GenerateContent() error = %v", err)
		}
		responses = append(responses, resp)
	}

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	resp := responses[0]
	if !resp.HasToolCalls() || resp.ToolCalls[0].Name != "web_search" || resp.ToolCalls[0].ID != "call_1" {
		t.Errorf("ToolCalls = %+v", resp.ToolCalls)
	}
	if !strings.Contains(resp.ToolCalls[0].Arguments, "강남 상권") {
		t.Errorf("Arguments = %q", resp.ToolCalls[0].Arguments)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 60 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.FinishReason != model.FinishReasonToolCalls {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}

	if got["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v", got["tool_choice"])
	}
	if tools, _ := got["tools"].([]any); len(tools) != 2 {
		t.Errorf("tools sent = %v", got["tools"])
	}
	if temp, _ := got["temperature"].(float64); temp < 0.29 || temp > 0.31 {
		t.Errorf("temperature = %v", got["temperature"])
	}
}

func TestGenerateContent_Stream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"강남역", " 상권은", " 활발합니다."} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":3,\"total_tokens\":8}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	req := &model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "강남역 상권 어때?"}}}

	var partials []string
	var final *model.Response
	for resp, err := range client.GenerateContent(context.Background(), req, true) {
		if err != nil {
			t.Fatalf("stream error = %v", err)
		}
		if resp.Partial {
			partials = append(partials, resp.Text)
			continue
		}
		final = resp
	}

	if len(partials) != 3 {
		t.Errorf("partials = %v, want 3", partials)
	}
	if final == nil || final.Text != "강남역 상권은 활발합니다." {
		t.Fatalf("final = %+v", final)
	}
	if final.Usage == nil || final.Usage.TotalTokens != 8 {
		t.Errorf("final usage = %+v", final.Usage)
	}
	if final.FinishReason != model.FinishReasonStop {
		t.Errorf("FinishReason = %q", final.FinishReason)
	}
}

func TestGenerateContent_StreamEarlyBreak(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"c%d\"}}]}\n\n", i)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	req := &model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}
	count := 0
	for range client.GenerateContent(context.Background(), req, true) {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestGenerateContent_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	})

	req := &model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}
	for _, stream := range []bool{false, true} {
		var gotErr error
		for _, err := range client.GenerateContent(context.Background(), req, stream) {
			gotErr = err
		}
		if gotErr == nil || !strings.Contains(gotErr.Error(), "invalid api key") {
			t.Errorf("stream=%v error = %v", stream, gotErr)
		}
	}
}

func TestGenerateContent_StreamToolCallDeltas(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_9\",\"type\":\"function\",\"function\":{\"name\":\"web_search\",\"arguments\":\"{\\\"query\\\":\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"\\\"x\\\"}\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	req := &model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "q"}}}
	var final *model.Response
	for resp, err := range client.GenerateContent(context.Background(), req, true) {
		if err != nil {
			t.Fatal(err)
		}
		final = resp
	}
	if final == nil || len(final.ToolCalls) != 1 {
		t.Fatalf("final = %+v", final)
	}
	if final.ToolCalls[0].Arguments != `{"query":"x"}` || final.ToolCalls[0].ID != "call_9" {
		t.Errorf("ToolCalls[0] = %+v", final.ToolCalls[0])
	}
}
