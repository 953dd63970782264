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

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateCmd(t *testing.T) {
	dir := t.TempDir()
	registry := writeFile(t, dir, "mcp_config.json", `{"mcpServers": {"tavily": {"url": "https://mcp.tavily.com/mcp"}}}`)
	badRegistry := writeFile(t, dir, "bad.json", `{"mcpServers": {"tavily": {}}}`)

	tests := []struct {
		name    string
		config  string
		wantErr bool
	}{
		{name: "valid", config: "tools:\n  registry_path: " + registry + "\n"},
		{name: "tools disabled", config: "tools:\n  enabled: false\n  registry_path: " + filepath.Join(dir, "missing.json") + "\n"},
		{name: "invalid provider", config: "tools:\n  registry_path: " + badRegistry + "\n", wantErr: true},
		{name: "missing registry", config: "tools:\n  registry_path: " + filepath.Join(dir, "missing.json") + "\n", wantErr: true},
		{name: "bad vector type", config: "vector:\n  type: faiss\ntools:\n  enabled: false\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "sitewise.yaml", tt.config)
			cmd := &ValidateCmd{Format: "compact"}
			err := cmd.Run(&CLI{Config: path})
			if (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCmd_LoadError(t *testing.T) {
	cmd := &ValidateCmd{Format: "json"}
	if err := cmd.Run(&CLI{Config: filepath.Join(t.TempDir(), "absent.yaml")}); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "info"); got != "info" {
		t.Errorf("firstNonEmpty() = %q", got)
	}
	if got := firstNonEmpty(""); got != "" {
		t.Errorf("firstNonEmpty() = %q", got)
	}
	if got := displayAddr(":8000"); got != "localhost:8000" {
		t.Errorf("displayAddr() = %q", got)
	}
}
