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
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// RegistryKey is the top-level key of the provider registry document.
const RegistryKey = "mcpServers"

// ProviderDescriptor holds the connection parameters of one MCP provider.
// Exactly one of URL and Command is set.
type ProviderDescriptor struct {
	URL        string            `json:"url,omitempty"`
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Transport  string            `json:"transport,omitempty"`
	Filter     []string          `json:"filter,omitempty"`
	MaxRetries int               `json:"max_retries,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty"`

	// decodeErr is set when the entry could not be decoded at all.
	decodeErr error
}

// Validate reports why the descriptor cannot be used to reach a provider.
func (d ProviderDescriptor) Validate() error {
	if d.decodeErr != nil {
		return d.decodeErr
	}
	if d.URL == "" && d.Command == "" {
		return fmt.Errorf("either url or command is required")
	}
	if d.URL != "" && d.Command != "" {
		return fmt.Errorf("url and command are mutually exclusive")
	}

	if unresolved := d.unresolved(); len(unresolved) > 0 {
		return fmt.Errorf("unresolved placeholder(s): %s", strings.Join(unresolved, ", "))
	}

	if d.URL != "" {
		u, err := url.Parse(d.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("url %q has no host", d.URL)
		}
	}

	switch d.Transport {
	case "", "stdio", "sse", "streamable-http":
	default:
		return fmt.Errorf("unknown transport %q", d.Transport)
	}
	if d.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

func (d ProviderDescriptor) unresolved() []string {
	var names []string
	names = append(names, UnresolvedPlaceholders(d.URL)...)
	names = append(names, UnresolvedPlaceholders(d.Command)...)
	for _, a := range d.Args {
		names = append(names, UnresolvedPlaceholders(a)...)
	}
	return names
}

// ProviderRegistry is the decoded provider registry document.
type ProviderRegistry struct {
	Path    string
	Servers map[string]ProviderDescriptor
}

// Names returns provider names in sorted order. Registration follows this
// order, so tool-name collisions resolve deterministically.
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.Servers))
	for name := range r.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadProviderRegistry reads and decodes the registry document at path.
func LoadProviderRegistry(path string) (*ProviderRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newConfigError(path, "failed to read provider registry", err)
	}
	reg, err := parseProviderRegistry(path, data)
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// ParseProviderRegistry decodes an in-memory registry document.
func ParseProviderRegistry(data []byte) (*ProviderRegistry, error) {
	return parseProviderRegistry("", data)
}

func parseProviderRegistry(path string, data []byte) (*ProviderRegistry, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, newConfigError(path, "provider registry is not valid JSON", err)
	}

	rawServers, ok := doc[RegistryKey]
	if !ok {
		return nil, newConfigError(path, fmt.Sprintf("provider registry is missing the %q key", RegistryKey), nil)
	}
	servers, ok := rawServers.(map[string]any)
	if !ok {
		return nil, newConfigError(path, fmt.Sprintf("%q must be an object mapping provider name to connection parameters", RegistryKey), nil)
	}

	reg := &ProviderRegistry{
		Path:    path,
		Servers: make(map[string]ProviderDescriptor, len(servers)),
	}
	for name, raw := range servers {
		reg.Servers[name] = decodeDescriptor(expandLenientData(raw))
	}
	return reg, nil
}

// decodeDescriptor never fails; an undecodable entry carries its error
// and is rejected when the provider is registered.
func decodeDescriptor(raw any) ProviderDescriptor {
	var d ProviderDescriptor

	entry, ok := raw.(map[string]any)
	if !ok {
		d.decodeErr = fmt.Errorf("connection parameters must be an object, got %T", raw)
		return d
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &d,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err == nil {
		err = decoder.Decode(entry)
	}
	if err != nil {
		return ProviderDescriptor{decodeErr: fmt.Errorf("failed to decode connection parameters: %w", err)}
	}
	return d
}

func expandLenientData(data any) any {
	switch v := data.(type) {
	case string:
		return ExpandLenient(v)
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = expandLenientData(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = expandLenientData(item)
		}
		return result
	default:
		return v
	}
}
