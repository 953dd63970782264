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
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/sitewise/pkg/embedder"
	"github.com/kadirpekel/sitewise/pkg/observability"
	"github.com/kadirpekel/sitewise/pkg/vector"
)

// DefaultIndexBatchSize is the number of chunks embedded per request.
const DefaultIndexBatchSize = 64

// chunkNamespace scopes the deterministic chunk IDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/kadirpekel/sitewise/chunks"))

// StoreConfig configures a Store.
type StoreConfig struct {
	Collection string
	BatchSize  int
	Metrics    observability.Metrics
}

// Store is a Retriever over an embedder and a vector index.
type Store struct {
	embedder   embedder.Embedder
	vectors    vector.Provider
	collection string
	batchSize  int
	metrics    observability.Metrics
}

// NewStore creates a Store. An empty collection defaults to
// "commercial_docs".
func NewStore(emb embedder.Embedder, vectors vector.Provider, cfg StoreConfig) *Store {
	if cfg.Collection == "" {
		cfg.Collection = "commercial_docs"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultIndexBatchSize
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	return &Store{
		embedder:   emb,
		vectors:    vectors,
		collection: cfg.Collection,
		batchSize:  cfg.BatchSize,
		metrics:    cfg.Metrics,
	}
}

// Search embeds query and returns the topK nearest chunks. Scores are
// clamped to [0, 1].
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Document, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanRetrieval,
		attribute.Int(observability.AttrRetrievalTopK, topK))
	start := time.Now()

	docs, err := s.search(ctx, query, topK)

	s.metrics.RecordRetrieval(ctx, time.Since(start), len(docs), err)
	span.SetAttributes(attribute.Int(observability.AttrRetrievalDocs, len(docs)))
	observability.EndSpan(span, err)
	return docs, err
}

func (s *Store) search(ctx context.Context, query string, topK int) ([]Document, error) {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &SearchError{Component: "embedder", Operation: "embed", Query: query, Err: err}
	}

	results, err := s.vectors.Search(ctx, s.collection, vec, topK)
	if err != nil {
		return nil, &SearchError{Component: "vector", Operation: "search", Query: query, Err: err}
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, Document{
			Content:  r.Content,
			Score:    clampScore(float64(r.Score)),
			Metadata: r.Metadata,
		})
	}
	return docs, nil
}

// FormatForPrompt implements Retriever.
func (s *Store) FormatForPrompt(docs []Document) string {
	return FormatForPrompt(docs)
}

// IndexStats summarizes one Index call.
type IndexStats struct {
	Documents int
	Batches   int
	Duration  time.Duration
}

// Index embeds docs in batches and upserts them. IDs derive from source,
// page and chunk_index, so re-indexing the same files replaces their chunks.
func (s *Store) Index(ctx context.Context, docs []Document) (IndexStats, error) {
	start := time.Now()
	stats := IndexStats{}

	for from := 0; from < len(docs); from += s.batchSize {
		batch := docs[from:min(from+s.batchSize, len(docs))]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return stats, &IndexError{Operation: "embed", Count: len(batch), Err: err}
		}

		records := make([]vector.Record, len(batch))
		for i, d := range batch {
			records[i] = vector.Record{
				ID:       ChunkID(d),
				Vector:   vectors[i],
				Content:  d.Content,
				Metadata: d.Metadata,
			}
		}
		if err := s.vectors.Upsert(ctx, s.collection, records); err != nil {
			return stats, &IndexError{Operation: "upsert", Count: len(batch), Err: err}
		}

		stats.Documents += len(batch)
		stats.Batches++
		slog.Debug("Indexed batch", "collection", s.collection, "documents", stats.Documents, "total", len(docs))
	}

	stats.Duration = time.Since(start)
	slog.Info("Indexing complete", "collection", s.collection, "documents", stats.Documents, "duration", stats.Duration)
	return stats, nil
}

// Clear removes the whole collection.
func (s *Store) Clear(ctx context.Context) error {
	return s.vectors.DeleteCollection(ctx, s.collection)
}

func (s *Store) Close() error {
	return s.vectors.Close()
}

// ChunkID returns the deterministic ID of a loaded chunk.
func ChunkID(d Document) string {
	source := d.Metadata[MetaFilePath]
	if source == "" {
		source = d.Metadata[MetaSource]
	}
	key := source + "#" + d.Metadata[MetaPage] + "#" + d.Metadata[MetaChunkIndex]
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

func clampScore(v float64) float64 {
	return max(0, min(1, v))
}

var _ Retriever = (*Store)(nil)
