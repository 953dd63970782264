package testutils

import (
	"context"
	"sync"

	"github.com/kadirpekel/sitewise/pkg/rag"
)

// FakeRetriever returns a fixed document list.
type FakeRetriever struct {
	Docs []rag.Document
	Err  error

	mu      sync.Mutex
	queries []string
}

func NewFakeRetriever(docs ...rag.Document) *FakeRetriever {
	return &FakeRetriever{Docs: docs}
}

func (r *FakeRetriever) Search(ctx context.Context, query string, topK int) ([]rag.Document, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Docs[:max(0, min(topK, len(r.Docs)))], nil
}

func (r *FakeRetriever) FormatForPrompt(docs []rag.Document) string {
	return rag.FormatForPrompt(docs)
}

// Queries returns the queries searched so far.
func (r *FakeRetriever) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.queries))
	copy(out, r.queries)
	return out
}

// Doc builds a document with a source and score.
func Doc(source, content string, score float64) rag.Document {
	return rag.Document{Content: content, Score: score, Metadata: map[string]string{rag.MetaSource: source}}
}
