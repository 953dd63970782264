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

package rag

import (
	"strconv"
	"strings"
)

// Default chunking parameters, in runes.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
	DefaultSeparator    = "\n\n"
)

// Splitter packs separator-delimited segments into chunks of about
// ChunkSize runes. Each new chunk starts with the last ChunkOverlap runes
// of the previous one. Chunks longer than 1.5×ChunkSize are cut into
// ChunkSize pieces.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separator    string
}

// NewSplitter returns a Splitter, using defaults for non-positive sizes.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = 0
		}
	}
	return &Splitter{ChunkSize: size, ChunkOverlap: overlap, Separator: DefaultSeparator}
}

// Split returns the chunks of text, or nil for blank input.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	sep := s.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	sepLen := runeLen(sep)

	var (
		chunks  []string
		current []rune
	)
	for _, segment := range strings.Split(text, sep) {
		seg := []rune(segment)
		if len(current)+len(seg)+sepLen <= s.ChunkSize {
			current = append(current, seg...)
			current = append(current, []rune(sep)...)
			continue
		}

		if trimmed := strings.TrimSpace(string(current)); trimmed != "" {
			chunks = append(chunks, trimmed)
		}

		var next []rune
		if s.ChunkOverlap > 0 && len(current) > 0 {
			next = append(next, current[max(0, len(current)-s.ChunkOverlap):]...)
		}
		next = append(next, seg...)
		current = append(next, []rune(sep)...)
	}
	if trimmed := strings.TrimSpace(string(current)); trimmed != "" {
		chunks = append(chunks, trimmed)
	}

	limit := s.ChunkSize + s.ChunkSize/2
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		runes := []rune(chunk)
		if len(runes) <= limit {
			out = append(out, chunk)
			continue
		}
		for i := 0; i < len(runes); i += s.ChunkSize {
			out = append(out, string(runes[i:min(i+s.ChunkSize, len(runes))]))
		}
	}
	return out
}

// SplitDocuments splits every document, copying its metadata and adding
// chunk_index and total_chunks.
func (s *Splitter) SplitDocuments(docs []Document) []Document {
	var out []Document
	for _, doc := range docs {
		chunks := s.Split(doc.Content)
		for i, chunk := range chunks {
			meta := make(map[string]string, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta[MetaChunkIndex] = strconv.Itoa(i)
			meta[MetaTotalChunks] = strconv.Itoa(len(chunks))
			out = append(out, Document{Content: chunk, Metadata: meta})
		}
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
