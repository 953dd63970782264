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

// Package vector stores embedded document chunks and answers nearest
// neighbour queries over them.
package vector

import "context"

// Record is one chunk to store. Vector must be set; Content and Metadata
// are returned verbatim by Search.
type Record struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]string
}

// Result is one search hit. Score is the cosine similarity reported by the
// backend, higher is closer.
type Result struct {
	ID       string
	Content  string
	Metadata map[string]string
	Score    float32
}

// Provider is a vector index backend.
type Provider interface {
	Name() string

	// Upsert inserts or replaces records, creating the collection on first
	// use.
	Upsert(ctx context.Context, collection string, records []Record) error

	// Search returns at most topK results ordered by descending score. An
	// unknown or empty collection yields no results and no error.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	DeleteCollection(ctx context.Context, collection string) error

	Close() error
}

// contentKey is the payload key holding chunk text in backends without a
// native document field.
const contentKey = "content"
