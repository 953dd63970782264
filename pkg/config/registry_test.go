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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseProviderRegistry(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "tvly-123")

	doc := `{
  "mcpServers": {
    "tavily": {"url": "https://mcp.tavily.com/mcp/?tavilyApiKey=${TAVILY_API_KEY}"},
    "local": {"command": "npx", "args": ["-y", "mcp-server", "--token=${MISSING_TOKEN}"]},
    "broken": "not-an-object"
  }
}`

	reg, err := ParseProviderRegistry([]byte(doc))
	if err != nil {
		t.Fatalf("ParseProviderRegistry() error = %v", err)
	}

	if got := strings.Join(reg.Names(), ","); got != "broken,local,tavily" {
		t.Errorf("Names() = %s", got)
	}

	tavily := reg.Servers["tavily"]
	if tavily.URL != "https://mcp.tavily.com/mcp/?tavilyApiKey=tvly-123" {
		t.Errorf("tavily url = %q", tavily.URL)
	}
	if err := tavily.Validate(); err != nil {
		t.Errorf("tavily should be valid: %v", err)
	}

	local := reg.Servers["local"]
	if local.Args[2] != "--token=${MISSING_TOKEN}" {
		t.Errorf("unresolved token should stay literal, got %q", local.Args[2])
	}
	if err := local.Validate(); err == nil || !strings.Contains(err.Error(), "MISSING_TOKEN") {
		t.Errorf("expected unresolved placeholder error, got %v", err)
	}

	if err := reg.Servers["broken"].Validate(); err == nil {
		t.Error("expected decode error for non-object entry")
	}
}

func TestParseProviderRegistry_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing registry key", `{"servers": {}}`},
		{"invalid json", `{"mcpServers": `},
		{"registry not an object", `{"mcpServers": ["a"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProviderRegistry([]byte(tt.doc))
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
		})
	}
}

func TestProviderDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		desc    ProviderDescriptor
		wantErr string
	}{
		{"url ok", ProviderDescriptor{URL: "http://localhost:8080/mcp"}, ""},
		{"command ok", ProviderDescriptor{Command: "uvx", Args: []string{"server"}}, ""},
		{"neither", ProviderDescriptor{}, "either url or command"},
		{"both", ProviderDescriptor{URL: "http://x", Command: "y"}, "mutually exclusive"},
		{"bad scheme", ProviderDescriptor{URL: "ftp://x/mcp"}, "scheme"},
		{"no host", ProviderDescriptor{URL: "http:///mcp"}, "no host"},
		{"placeholder in url", ProviderDescriptor{URL: "https://${HOST}/mcp"}, "HOST"},
		{"bad transport", ProviderDescriptor{URL: "http://x", Transport: "ws"}, "transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadProviderRegistry_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_config.json")
	if err := os.WriteFile(path, []byte(`{"mcpServers":{"s":{"url":"http://h/mcp","max_retries":"2","timeout":"5s"}}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadProviderRegistry(path)
	if err != nil {
		t.Fatalf("LoadProviderRegistry() error = %v", err)
	}
	s := reg.Servers["s"]
	if s.MaxRetries != 2 || s.Timeout != 5*time.Second {
		t.Errorf("descriptor = %+v", s)
	}
	if reg.Path != path {
		t.Errorf("Path = %q", reg.Path)
	}
}

func TestWatchFile_FiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp_config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, path, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"mcpServers":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("onChange was not called")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchFile() error = %v", err)
	}
}
