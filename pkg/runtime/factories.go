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

package runtime

import (
	"fmt"

	"github.com/kadirpekel/sitewise/pkg/config"
	"github.com/kadirpekel/sitewise/pkg/embedder"
	"github.com/kadirpekel/sitewise/pkg/model"
	"github.com/kadirpekel/sitewise/pkg/model/openai"
	"github.com/kadirpekel/sitewise/pkg/observability"
)

// LLMFactory creates the chat model.
type LLMFactory func(cfg config.LLMConfig, metrics observability.Metrics) (model.LLM, error)

// EmbedderFactory creates the embedding model.
type EmbedderFactory func(cfg config.EmbedderConfig) (embedder.Embedder, error)

// DefaultLLMFactory creates LLM instances based on provider type.
func DefaultLLMFactory(cfg config.LLMConfig, metrics observability.Metrics) (model.LLM, error) {
	switch cfg.Provider {
	case "openai", "":
		temperature := cfg.Temperature
		client, err := openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: &temperature,
			BaseURL:     cfg.BaseURL,
			Metrics:     metrics,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// DefaultEmbedderFactory creates the OpenAI embedder.
func DefaultEmbedderFactory(cfg config.EmbedderConfig) (embedder.Embedder, error) {
	emb, err := embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return emb, nil
}
