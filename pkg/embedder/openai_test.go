// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != DefaultOpenAIModel {
			t.Errorf("model = %q", req.Model)
		}

		// Answer in reverse order to check that Index is honoured.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), 0, 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimension() != 1536 {
		t.Errorf("initial Dimension() = %d, want 1536", e.Dimension())
	}

	texts := []string{"a", "bb", "ccc"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	for i, v := range vecs {
		if v[0] != float32(len(texts[i])) {
			t.Errorf("vecs[%d] = %v, out of order", i, v)
		}
	}
	if e.Dimension() != 3 {
		t.Errorf("Dimension() = %d, want 3 after a call", e.Dimension())
	}

	many := make([]string, 250)
	for i := range many {
		many[i] = fmt.Sprint(i)
	}
	requests = 0
	vecs, err = e.EmbedBatch(context.Background(), many)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 250 || requests != 3 {
		t.Errorf("got %d vectors in %d requests, want 250 in 3", len(vecs), requests)
	}

	one, err := e.Embed(context.Background(), "dddd")
	if err != nil || one[0] != 4 {
		t.Errorf("Embed() = %v, %v", one, err)
	}
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder(OpenAIConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}
