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

package vector

import (
	"fmt"

	"github.com/kadirpekel/sitewise/pkg/config"
)

// Supported backend types.
const (
	TypeChromem  = "chromem"
	TypeQdrant   = "qdrant"
	TypePinecone = "pinecone"
)

// New creates the provider selected by cfg.Type.
func New(cfg config.VectorConfig) (Provider, error) {
	switch cfg.Type {
	case TypeChromem, "":
		return NewChromemProvider(cfg.Chromem)
	case TypeQdrant:
		return NewQdrantProvider(cfg.Qdrant)
	case TypePinecone:
		return NewPineconeProvider(cfg.Pinecone)
	default:
		return nil, fmt.Errorf("unsupported vector provider type: %q", cfg.Type)
	}
}
