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

// Package mcptoolset provides a tool provider backed by an MCP server.
//
// The connection is established lazily on the first ListTools or CallTool
// and reused afterwards. A failed connection attempt is not cached, so the
// next discovery retries it.
//
// Transport Support:
//   - stdio: Uses mcp-go library for subprocess communication
//   - sse, streamable-http: JSON-RPC over the retrying pkg/httpclient
package mcptoolset

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kadirpekel/sitewise"
	"github.com/kadirpekel/sitewise/pkg/tool"
)

const (
	// DefaultSSEResponseTimeout bounds reading one SSE response.
	DefaultSSEResponseTimeout = 5 * time.Minute

	// DefaultRequestTimeout is the HTTP client timeout for url providers.
	DefaultRequestTimeout = 30 * time.Second

	protocolVersion = "2024-11-05"
	clientName      = "sitewise"
)

// Config configures one MCP provider.
type Config struct {
	// Name identifies the provider in the catalog.
	Name string

	// URL is the MCP server URL (for HTTP transports).
	URL string

	// Transport specifies the MCP transport (sse, streamable-http, stdio).
	Transport string

	// Command, Args and Env launch a stdio server.
	Command string
	Args    []string
	Env     map[string]string

	// Filter limits which tools are exposed.
	Filter []string

	// MaxRetries for HTTP requests (default: 0).
	MaxRetries int

	// Timeout for each HTTP request (default: 30s).
	Timeout time.Duration

	// SSETimeout for SSE response reading (default: 5m).
	SSETimeout time.Duration
}

// transport is the wire-level half of a provider.
type transport interface {
	connect(ctx context.Context) error
	listTools(ctx context.Context) ([]tool.Descriptor, error)
	callTool(ctx context.Context, name string, args map[string]any) (any, error)
	close() error
}

// Provider is an MCP-backed tool provider with lazy initialization.
type Provider struct {
	cfg Config

	mu        sync.Mutex
	transport transport
	connected bool
}

// New creates a provider. It does not connect.
func New(cfg Config) (*Provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if cfg.URL == "" && cfg.Command == "" {
		return nil, fmt.Errorf("either url or command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.SSETimeout <= 0 {
		cfg.SSETimeout = DefaultSSEResponseTimeout
	}

	p := &Provider{cfg: cfg}
	if cfg.Command != "" || cfg.Transport == "stdio" {
		p.transport = &stdioTransport{cfg: cfg}
	} else {
		p.transport = newHTTPTransport(cfg)
	}
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.cfg.Name
}

// ListTools connects if needed and returns the provider's tools, filtered
// by Config.Filter.
func (p *Provider) ListTools(ctx context.Context) ([]tool.Descriptor, error) {
	if err := p.ensureConnected(ctx); err != nil {
		return nil, err
	}

	tools, err := p.transport.listTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	out := tools[:0]
	for _, t := range tools {
		if len(p.cfg.Filter) > 0 && !slices.Contains(p.cfg.Filter, t.Name) {
			continue
		}
		t.Provider = p.cfg.Name
		out = append(out, t)
	}
	return out, nil
}

// CallTool invokes name with args. A tool-level error reported by the
// server is returned as an error.
func (p *Provider) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	if err := p.ensureConnected(ctx); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return p.transport.callTool(ctx, name, args)
}

// Close closes the MCP connection.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil
	}
	p.connected = false
	return p.transport.close()
}

func (p *Provider) ensureConnected(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return nil
	}
	if err := p.transport.connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MCP server %q: %w", p.cfg.Name, err)
	}
	p.connected = true

	slog.Info("Connected to MCP server",
		"name", p.cfg.Name,
		"url", redactURL(p.cfg.URL),
		"command", p.cfg.Command,
		"transport", p.cfg.Transport,
	)
	return nil
}

func clientInfo() map[string]any {
	return map[string]any{
		"name":    clientName,
		"version": sitewise.Current().Version,
	}
}
