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

// Package rag is the local knowledge base: it loads and chunks documents,
// indexes them through an embedder into a vector store, and retrieves the
// closest chunks for a query.
package rag

import "context"

// Document is one retrieved or loaded chunk. Score is a relevance in [0, 1]
// for search hits and zero for loaded documents.
type Document struct {
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// Source returns the "source" metadata, or "unknown".
func (d Document) Source() string {
	if s := d.Metadata[MetaSource]; s != "" {
		return s
	}
	return "unknown"
}

// Metadata keys written by the loader.
const (
	MetaSource      = "source"
	MetaFilePath    = "file_path"
	MetaFileType    = "file_type"
	MetaPage        = "page"
	MetaTotalPages  = "total_pages"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
)

// Retriever finds documents relevant to a query.
type Retriever interface {
	// Search returns at most topK documents in descending relevance.
	Search(ctx context.Context, query string, topK int) ([]Document, error)

	// FormatForPrompt renders docs as a prompt context block. It returns ""
	// for no documents.
	FormatForPrompt(docs []Document) string
}
