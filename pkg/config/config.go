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

// Package config loads the sitewise application configuration and the MCP
// provider registry.
//
// The application config is YAML with strict environment expansion
// (${VAR}, ${VAR:-default}, $VAR). The provider registry is a JSON document
// with a top-level "mcpServers" key and lenient ${VAR} substitution.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Embedder      EmbedderConfig      `yaml:"embedder"`
	Vector        VectorConfig        `yaml:"vector"`
	Tools         ToolsConfig         `yaml:"tools"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Logger        LoggerConfig        `yaml:"logger"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Default returns a configuration that runs without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults(c.LLM)
	c.Vector.SetDefaults()
	c.Tools.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Ingest.SetDefaults()
	c.Logger.SetDefaults()
	c.Observability.SetDefaults()
}

func (c *Config) Validate() error {
	var errs []error
	for _, v := range []interface{ Validate() error }{
		&c.Server, &c.LLM, &c.Vector, &c.Tools, &c.Retrieval, &c.Ingest, &c.Logger, &c.Observability,
	} {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8000"
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"http://localhost:5173", "http://localhost:5174"}
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

func (c *ServerConfig) Validate() error {
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative")
	}
	return nil
}

// LLMConfig configures the chat model used for tool selection and answers.
type LLMConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	RouterTemperature float64 `yaml:"router_temperature"`
}

// Default generation settings.
const (
	DefaultModel             = "gpt-4o-mini"
	DefaultTemperature       = 0.7
	DefaultMaxTokens         = 1000
	DefaultRouterTemperature = 0.3
)

func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(c.Provider)
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.RouterTemperature == 0 {
		c.RouterTemperature = DefaultRouterTemperature
	}
}

func (c *LLMConfig) Validate() error {
	if c.Provider != "openai" {
		return fmt.Errorf("llm.provider %q is not supported (want openai)", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must not be negative")
	}
	return nil
}

// EmbedderConfig configures the embedding model behind local search.
type EmbedderConfig struct {
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

func (c *EmbedderConfig) SetDefaults(llm LLMConfig) {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.APIKey == "" {
		c.APIKey = llm.APIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = llm.BaseURL
	}
}

// VectorConfig selects and configures the vector index.
type VectorConfig struct {
	Type       string         `yaml:"type"`
	Collection string         `yaml:"collection"`
	Chromem    ChromemConfig  `yaml:"chromem"`
	Qdrant     QdrantConfig   `yaml:"qdrant"`
	Pinecone   PineconeConfig `yaml:"pinecone"`
}

type ChromemConfig struct {
	PersistPath string `yaml:"persist_path"`
	Compress    bool   `yaml:"compress"`
}

type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

type PineconeConfig struct {
	APIKey    string `yaml:"api_key"`
	Host      string `yaml:"host"`
	IndexName string `yaml:"index_name"`
}

func (c *VectorConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.Collection == "" {
		c.Collection = "commercial_docs"
	}
	if c.Type == "chromem" && c.Chromem.PersistPath == "" {
		c.Chromem.PersistPath = "./data/vectors"
	}
	if c.Type == "qdrant" && c.Qdrant.Port == 0 {
		c.Qdrant.Port = 6334
	}
}

func (c *VectorConfig) Validate() error {
	switch c.Type {
	case "chromem":
		return nil
	case "qdrant":
		if c.Qdrant.Host == "" {
			return fmt.Errorf("vector.qdrant.host is required")
		}
		return nil
	case "pinecone":
		if c.Pinecone.APIKey == "" {
			return fmt.Errorf("vector.pinecone.api_key is required")
		}
		return nil
	default:
		return fmt.Errorf("vector.type %q is not supported (want chromem, qdrant or pinecone)", c.Type)
	}
}

// ToolsConfig configures the MCP tool subsystem.
type ToolsConfig struct {
	Enabled             *bool  `yaml:"enabled"`
	RegistryPath        string `yaml:"registry_path"`
	EnhanceDescriptions *bool  `yaml:"enhance_descriptions"`
	MaxPayloadTokens    int    `yaml:"max_payload_tokens"`
	// FallbackProvider owns the static web_search and web_extract entries
	// when discovery returns nothing.
	FallbackProvider string `yaml:"fallback_provider"`
}

func (c *ToolsConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.RegistryPath == "" {
		c.RegistryPath = "mcp_config.json"
	}
	if c.EnhanceDescriptions == nil {
		c.EnhanceDescriptions = BoolPtr(true)
	}
	if c.MaxPayloadTokens == 0 {
		c.MaxPayloadTokens = 1500
	}
}

func (c *ToolsConfig) Validate() error {
	if c.MaxPayloadTokens < 0 {
		return fmt.Errorf("tools.max_payload_tokens must not be negative")
	}
	return nil
}

// RetrievalConfig configures local search and query expansion.
type RetrievalConfig struct {
	TopK       int `yaml:"top_k"`
	MaxHistory int `yaml:"max_history"`
}

func (c *RetrievalConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 3
	}
	if c.MaxHistory == 0 {
		c.MaxHistory = 2
	}
}

func (c *RetrievalConfig) Validate() error {
	if c.TopK < 0 || c.MaxHistory < 0 {
		return fmt.Errorf("retrieval.top_k and retrieval.max_history must not be negative")
	}
	return nil
}

// IngestConfig configures document chunking for the ingest command.
type IngestConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Extensions   []string `yaml:"extensions"`
}

func (c *IngestConfig) SetDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 500
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 100
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
}

func (c *IngestConfig) Validate() error {
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// LoggerConfig configures logging.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggerConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logger.level %q is invalid (want debug, info, warn or error)", c.Level)
	}
	return nil
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
}

func (c *ObservabilityConfig) SetDefaults() {
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "sitewise"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "stdout"
	}
	if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4317"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
}

func (c *ObservabilityConfig) Validate() error {
	switch c.Tracing.Exporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("observability.tracing.exporter %q is invalid (want stdout or otlp)", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("observability.tracing.sample_rate must be within [0, 1]")
	}
	return nil
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

// BoolValue dereferences p, returning def when nil.
func BoolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
