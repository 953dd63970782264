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

package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kadirpekel/sitewise/pkg/chain"
	"github.com/kadirpekel/sitewise/pkg/model"
	"github.com/kadirpekel/sitewise/pkg/rag"
	"github.com/kadirpekel/sitewise/pkg/tool"
)

// maxBodyBytes bounds chat request bodies.
const maxBodyBytes = 1 << 20

// ChatRequest is the body of both chat endpoints.
type ChatRequest struct {
	Message string       `json:"message"`
	History []chain.Turn `json:"history,omitempty"`
	TopK    int          `json:"top_k,omitempty"`
}

// ChatResponse is the body returned by /api/rag-chat. Reply and Message
// both carry the answer.
type ChatResponse struct {
	Reply       string                 `json:"reply"`
	Message     string                 `json:"message"`
	Sources     []rag.Document         `json:"sources"`
	ToolResults map[string]tool.Result `json:"tool_results"`
	ToolsUsed   []string               `json:"tools_used"`
	Strategy    chain.Strategy         `json:"strategy"`
	Usage       *model.Usage           `json:"usage,omitempty"`
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (chain.Request, bool) {
	var body ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return chain.Request{}, false
	}

	query := strings.TrimSpace(body.Message)
	if query == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return chain.Request{}, false
	}
	if body.TopK < 0 {
		writeError(w, http.StatusBadRequest, "top_k must not be negative")
		return chain.Request{}, false
	}
	for i, t := range body.History {
		if t.Role != chain.RoleUser && t.Role != chain.RoleAssistant {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("history[%d]: unknown role %q", i, t.Role))
			return chain.Request{}, false
		}
	}

	return chain.Request{Query: query, History: body.History, TopK: body.TopK}, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	slog.Info("Chat request", "request_id", RequestID(r.Context()), "history", len(req.History))
	res := s.answerer.Run(r.Context(), req)

	writeJSON(w, http.StatusOK, ChatResponse{
		Reply:       res.Answer,
		Message:     res.Answer,
		Sources:     res.Sources,
		ToolResults: res.ToolResults,
		ToolsUsed:   res.ToolsUsed,
		Strategy:    res.Strategy,
		Usage:       res.Usage,
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	requestID := RequestID(r.Context())
	slog.Info("Chat stream request", "request_id", requestID, "history", len(req.History))

	for event := range s.answerer.StreamRun(r.Context(), req) {
		if err := writeSSE(w, toSSE(event)); err != nil {
			slog.Debug("Client went away", "request_id", requestID, "error", err)
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"tools":   s.toolCount(),
		"version": s.version,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	endpoints := []string{"POST /api/rag-chat", "POST /api/rag-chat-stream", "GET /health"}
	if s.metricsHandler != nil {
		endpoints = append(endpoints, "GET /metrics")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "sitewise",
		"version":   s.version,
		"endpoints": endpoints,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
