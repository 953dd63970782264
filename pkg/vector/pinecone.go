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
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kadirpekel/sitewise/pkg/config"
)

// pineconeUpsertBatch is the largest vector batch sent per request.
const pineconeUpsertBatch = 100

// PineconeProvider implements Provider over a Pinecone index. Collections map
// to namespaces of the configured index.
type PineconeProvider struct {
	client    *pinecone.Client
	indexName string

	mu   sync.Mutex
	host string
}

func NewPineconeProvider(cfg config.PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}
	if cfg.Host == "" && cfg.IndexName == "" {
		return nil, fmt.Errorf("either an index host or an index name is required for Pinecone")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	return &PineconeProvider{client: client, indexName: cfg.IndexName, host: cfg.Host}, nil
}

func (p *PineconeProvider) Name() string {
	return "pinecone"
}

func (p *PineconeProvider) connect(ctx context.Context, namespace string) (*pinecone.IndexConnection, error) {
	p.mu.Lock()
	host := p.host
	if host == "" {
		index, err := p.client.DescribeIndex(ctx, p.indexName)
		if err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("failed to describe index %s: %w", p.indexName, err)
		}
		host = index.Host
		p.host = host
	}
	p.mu.Unlock()

	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}
	return conn, nil
}

func (p *PineconeProvider) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	vectors := make([]*pinecone.Vector, 0, len(records))
	for _, r := range records {
		fields := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			fields[k] = v
		}
		fields[contentKey] = r.Content
		metadata, err := structpb.NewStruct(fields)
		if err != nil {
			return fmt.Errorf("failed to convert metadata for %s: %w", r.ID, err)
		}
		vectors = append(vectors, &pinecone.Vector{Id: r.ID, Values: r.Vector, Metadata: metadata})
	}

	for start := 0; start < len(vectors); start += pineconeUpsertBatch {
		end := min(start+pineconeUpsertBatch, len(vectors))
		if _, err := conn.UpsertVectors(ctx, vectors[start:end]); err != nil {
			return fmt.Errorf("failed to upsert vectors: %w", err)
		}
	}
	return nil
}

func (p *PineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Pinecone: %w", err)
	}
	return convertPineconeResults(resp.Matches), nil
}

// DeleteCollection removes every vector in the collection's namespace.
func (p *PineconeProvider) DeleteCollection(ctx context.Context, collection string) error {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("failed to clear namespace %s: %w", collection, err)
	}
	return nil
}

func (p *PineconeProvider) Close() error {
	return nil
}

func convertPineconeResults(matches []*pinecone.ScoredVector) []Result {
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		if m.Vector == nil {
			continue
		}
		r := Result{ID: m.Vector.Id, Score: m.Score, Metadata: make(map[string]string)}
		if m.Vector.Metadata != nil {
			for k, v := range m.Vector.Metadata.AsMap() {
				s := fmt.Sprint(v)
				if k == contentKey {
					r.Content = s
					continue
				}
				r.Metadata[k] = s
			}
		}
		results = append(results, r)
	}
	return results
}

var _ Provider = (*PineconeProvider)(nil)
