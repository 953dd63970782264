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
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/sitewise/pkg/config"
	"github.com/kadirpekel/sitewise/pkg/vector"
)

// keywordEmbedder maps text onto fixed axes by keyword, so nearest
// neighbours are predictable.
type keywordEmbedder struct {
	mu     sync.Mutex
	err    error
	batch  []int
	axes   []string
	single int
}

func newKeywordEmbedder(axes ...string) *keywordEmbedder {
	return &keywordEmbedder{axes: axes}
}

func (e *keywordEmbedder) vector(text string) []float32 {
	v := make([]float32, len(e.axes)+1)
	v[len(e.axes)] = 0.01
	for i, axis := range e.axes {
		if strings.Contains(text, axis) {
			v[i] = 1
		}
	}
	return v
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.single++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batch = append(e.batch, len(texts))
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) Dimension() int { return len(e.axes) + 1 }
func (e *keywordEmbedder) Model() string  { return "keyword" }

func newTestStore(t *testing.T, emb *keywordEmbedder, batch int) *Store {
	t.Helper()
	vec, err := vector.NewChromemProvider(config.ChromemConfig{})
	require.NoError(t, err)
	return NewStore(emb, vec, StoreConfig{Collection: "test", BatchSize: batch})
}

func chunk(source, index, content string) Document {
	return Document{Content: content, Metadata: map[string]string{
		MetaSource: source, MetaFilePath: "docs/" + source, MetaChunkIndex: index,
	}}
}

func TestStore_IndexAndSearch(t *testing.T) {
	emb := newKeywordEmbedder("강남", "홍대", "판교")
	store := newTestStore(t, emb, 2)
	ctx := context.Background()

	stats, err := store.Index(ctx, []Document{
		chunk("gangnam.pdf", "0", "강남역 유동인구 분석"),
		chunk("hongdae.pdf", "0", "홍대 상권 임대료"),
		chunk("pangyo.pdf", "0", "판교 오피스 수요"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, []int{2, 1}, emb.batch)

	docs, err := store.Search(ctx, "강남 상권 어때?", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "gangnam.pdf", docs[0].Source())
	assert.GreaterOrEqual(t, docs[0].Score, docs[1].Score)
	for _, d := range docs {
		assert.GreaterOrEqual(t, d.Score, 0.0)
		assert.LessOrEqual(t, d.Score, 1.0)
	}
}

func TestStore_ReindexReplaces(t *testing.T) {
	emb := newKeywordEmbedder("강남")
	store := newTestStore(t, emb, 10)
	ctx := context.Background()

	_, err := store.Index(ctx, []Document{chunk("a.txt", "0", "강남 v1")})
	require.NoError(t, err)
	_, err = store.Index(ctx, []Document{chunk("a.txt", "0", "강남 v2")})
	require.NoError(t, err)

	docs, err := store.Search(ctx, "강남", 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "강남 v2", docs[0].Content)
}

func TestStore_SearchEdgeCases(t *testing.T) {
	emb := newKeywordEmbedder("강남")
	store := newTestStore(t, emb, 10)
	ctx := context.Background()

	docs, err := store.Search(ctx, "강남", 3)
	require.NoError(t, err, "empty collection")
	assert.Empty(t, docs)

	docs, err = store.Search(ctx, "   ", 3)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 1, emb.single, "blank query must not be embedded")

	docs, err = store.Search(ctx, "강남", 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStore_Errors(t *testing.T) {
	emb := newKeywordEmbedder("강남")
	emb.err = errors.New("rate limited")
	store := newTestStore(t, emb, 10)
	ctx := context.Background()

	_, err := store.Search(ctx, "강남", 3)
	var searchErr *SearchError
	require.ErrorAs(t, err, &searchErr)
	assert.Equal(t, "embedder", searchErr.Component)
	assert.Contains(t, err.Error(), "rate limited")

	_, err = store.Index(ctx, []Document{chunk("a.txt", "0", "x")})
	var indexErr *IndexError
	require.ErrorAs(t, err, &indexErr)
	assert.Equal(t, "embed", indexErr.Operation)
}

func TestChunkID(t *testing.T) {
	a := ChunkID(chunk("a.pdf", "0", "x"))
	assert.Equal(t, a, ChunkID(chunk("a.pdf", "0", "y")), "content does not affect identity")
	assert.NotEqual(t, a, ChunkID(chunk("a.pdf", "1", "x")))

	paged := chunk("a.pdf", "0", "x")
	paged.Metadata[MetaPage] = "2"
	assert.NotEqual(t, a, ChunkID(paged))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, clampScore(-0.2))
	assert.Equal(t, 1.0, clampScore(1.0000001))
	assert.Equal(t, 0.5, clampScore(0.5))
}

func TestFormatForPrompt(t *testing.T) {
	assert.Equal(t, "", FormatForPrompt(nil))

	got := FormatForPrompt([]Document{
		{Content: "강남역 일 평균 유동인구 15만 명\n", Score: 0.834, Metadata: map[string]string{MetaSource: "gangnam.pdf"}},
		{Content: "임대료 상승", Score: 0.5},
	})
	want := "[문서 1] (출처: gangnam.pdf, 관련도: 0.83)\n강남역 일 평균 유동인구 15만 명\n\n" +
		"[문서 2] (출처: unknown, 관련도: 0.50)\n임대료 상승"
	assert.Equal(t, want, got)
}

func TestMeanScore(t *testing.T) {
	assert.Equal(t, 0.0, MeanScore(nil))
	assert.InDelta(t, 0.6, MeanScore([]Document{{Score: 0.4}, {Score: 0.8}}), 1e-9)
}
