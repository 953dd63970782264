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

package mcptoolset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kadirpekel/sitewise/pkg/httpclient"
	"github.com/kadirpekel/sitewise/pkg/tool"
)

// httpTransport speaks JSON-RPC over HTTP, accepting both plain JSON and
// SSE-framed responses.
type httpTransport struct {
	cfg        Config
	httpClient *httpclient.Client
	nextID     atomic.Int64

	sessionMu sync.RWMutex
	sessionID string
}

func newHTTPTransport(cfg Config) *httpTransport {
	return &httpTransport{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(2*time.Second),
		),
	}
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonRPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func (h *httpTransport) connect(ctx context.Context) error {
	h.setSession("")

	initResp, err := h.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      clientInfo(),
		"capabilities":    map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}
	if initResp.Error != nil {
		return fmt.Errorf("MCP init error: %w", initResp.Error)
	}

	if err := h.notify(ctx, "notifications/initialized"); err != nil {
		slog.Debug("MCP initialized notification failed", "source", h.cfg.Name, "error", err)
	}
	return nil
}

func (h *httpTransport) listTools(ctx context.Context) ([]tool.Descriptor, error) {
	var tools []tool.Descriptor
	var params map[string]any

	for {
		resp, err := h.call(ctx, "tools/list", params)
		if err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, resp.Error
		}

		resultMap, ok := resp.Result.(map[string]any)
		if !ok {
			return nil, errors.New("unexpected result type from tools/list")
		}
		toolsList, ok := resultMap["tools"].([]any)
		if !ok {
			return nil, errors.New("missing tools in tools/list response")
		}

		for _, raw := range toolsList {
			toolMap, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := toolMap["name"].(string)
			if name == "" {
				continue
			}
			desc, _ := toolMap["description"].(string)
			schema, _ := toolMap["inputSchema"].(map[string]any)
			tools = append(tools, tool.Descriptor{
				Name:        name,
				Description: desc,
				InputSchema: schema,
			})
		}

		cursor, _ := resultMap["nextCursor"].(string)
		if cursor == "" {
			return tools, nil
		}
		params = map[string]any{"cursor": cursor}
	}
}

func (h *httpTransport) callTool(ctx context.Context, name string, args map[string]any) (any, error) {
	resp, err := h.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("MCP call failed: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return map[string]any{"result": resp.Result}, nil
	}

	isError, _ := resultMap["isError"].(bool)
	content, hasContent := resultMap["content"].([]any)
	if !hasContent && !isError {
		if structured, ok := resultMap["structuredContent"]; ok {
			return map[string]any{"result": structured}, nil
		}
	}

	var texts []string
	for _, c := range content {
		if cm, ok := c.(map[string]any); ok && cm["type"] == "text" {
			if text, ok := cm["text"].(string); ok {
				texts = append(texts, text)
			}
		}
	}
	return textPayload(texts, isError)
}

func (h *httpTransport) close() error {
	h.setSession("")
	return nil
}

// call sends one JSON-RPC request and waits for its response.
func (h *httpTransport) call(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	httpResp, err := h.post(ctx, jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      h.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("MCP HTTP request completed",
		"source", h.cfg.Name,
		"method", method,
		"status_code", httpResp.StatusCode,
		"content_type", httpResp.Header.Get("Content-Type"))

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return h.readSSEResponse(ctx, httpResp)
	}

	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp jsonRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// notify sends a JSON-RPC notification; there is no response body to read.
func (h *httpTransport) notify(ctx context.Context, method string) error {
	httpResp, err := h.post(ctx, jsonRPCRequest{JSONRPC: "2.0", Method: method})
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, httpResp.Body)
	return httpResp.Body.Close()
}

func (h *httpTransport) post(ctx context.Context, req jsonRPCRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID := h.session(); sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := h.httpClient.Do(httpReq)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && httpResp != nil {
			responseBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
			httpResp.Body.Close()
			return nil, fmt.Errorf("%w (response: %s)", err, strings.TrimSpace(string(responseBody)))
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redactURL(urlErr.URL)
		}
		slog.Debug("MCP HTTP request failed",
			"source", h.cfg.Name,
			"method", req.Method,
			"error", err.Error())
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		h.setSession(newSessionID)
	}
	return httpResp, nil
}

// readSSEResponse reads events until the first JSON-RPC response, skipping
// server notifications. It gives up on ctx cancellation or SSETimeout.
func (h *httpTransport) readSSEResponse(ctx context.Context, httpResp *http.Response) (*jsonRPCResponse, error) {
	type result struct {
		response *jsonRPCResponse
		err      error
	}
	resultChan := make(chan result, 1)

	go func() {
		reader := bufio.NewReader(httpResp.Body)
		var data strings.Builder

		flush := func() *jsonRPCResponse {
			defer data.Reset()
			if data.Len() == 0 {
				return nil
			}
			var resp jsonRPCResponse
			if err := json.Unmarshal([]byte(data.String()), &resp); err != nil {
				return nil
			}
			if resp.Method != "" {
				return nil
			}
			return &resp
		}

		for {
			line, err := reader.ReadString('\n')
			trimmed := strings.TrimRight(line, "\r\n")

			if trimmed == "" && line != "" {
				if resp := flush(); resp != nil {
					resultChan <- result{response: resp}
					return
				}
			} else if strings.HasPrefix(trimmed, "data:") {
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")))
			}

			if err != nil {
				if resp := flush(); resp != nil {
					resultChan <- result{response: resp}
					return
				}
				if errors.Is(err, io.EOF) {
					err = errors.New("SSE stream ended without complete message")
				}
				resultChan <- result{err: err}
				return
			}
		}
	}()

	timer := time.NewTimer(h.cfg.SSETimeout)
	defer timer.Stop()
	defer httpResp.Body.Close()

	select {
	case res := <-resultChan:
		return res.response, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("timeout reading SSE response after %v", h.cfg.SSETimeout)
	}
}

func (h *httpTransport) session() string {
	h.sessionMu.RLock()
	defer h.sessionMu.RUnlock()
	return h.sessionID
}

func (h *httpTransport) setSession(id string) {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	h.sessionID = id
}

// redactURL drops the query string, which commonly carries API keys.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.Redacted()
}
