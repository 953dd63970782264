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

package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/kadirpekel/sitewise/pkg/config"
)

// ChromemProvider implements Provider using chromem-go for embedded vector
// storage. With a persist path every change is written to disk; without one
// vectors live in memory only.
type ChromemProvider struct {
	db          *chromem.DB
	persistPath string

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// errEmbeddingRequired is returned by the collection embedding function.
// Records always arrive with vectors computed by the embedder package.
var errEmbeddingRequired = errors.New("chromem: documents must carry a precomputed embedding")

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errEmbeddingRequired
}

// NewChromemProvider opens (or creates) the store described by cfg.
func NewChromemProvider(cfg config.ChromemConfig) (*ChromemProvider, error) {
	p := &ChromemProvider{
		persistPath: cfg.PersistPath,
		collections: make(map[string]*chromem.Collection),
	}

	if cfg.PersistPath == "" {
		p.db = chromem.NewDB()
		return p, nil
	}

	if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create persist directory %s: %w", cfg.PersistPath, err)
	}
	db, err := chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem store at %s: %w", cfg.PersistPath, err)
	}
	p.db = db
	slog.Debug("Opened chromem store", "path", cfg.PersistPath, "collections", len(db.ListCollections()))
	return p, nil
}

func (p *ChromemProvider) Name() string {
	return "chromem"
}

func (p *ChromemProvider) collection(name string, create bool) (*chromem.Collection, error) {
	p.mu.RLock()
	col, ok := p.collections[name]
	p.mu.RUnlock()
	if ok {
		return col, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if col, ok := p.collections[name]; ok {
		return col, nil
	}

	if create {
		var err error
		col, err = p.db.GetOrCreateCollection(name, nil, noEmbedding)
		if err != nil {
			return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
		}
	} else {
		col = p.db.GetCollection(name, noEmbedding)
		if col == nil {
			return nil, nil
		}
	}
	p.collections[name] = col
	return col, nil
}

func (p *ChromemProvider) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	col, err := p.collection(collection, true)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("record %s has no vector", r.ID)
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  r.Metadata,
			Embedding: r.Vector,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (p *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	col, err := p.collection(collection, false)
	if err != nil || col == nil {
		return nil, err
	}

	n := min(topK, col.Count())
	if n <= 0 {
		return nil, nil
	}

	hits, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			ID:       h.ID,
			Content:  h.Content,
			Metadata: h.Metadata,
			Score:    h.Similarity,
		}
	}
	return results, nil
}

func (p *ChromemProvider) DeleteCollection(ctx context.Context, collection string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.collections, collection)
	if err := p.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", collection, err)
	}
	return nil
}

func (p *ChromemProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collections = make(map[string]*chromem.Collection)
	return nil
}

var _ Provider = (*ChromemProvider)(nil)
