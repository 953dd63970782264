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

// Package registry provides a concurrency-safe keyed registry that keeps
// insertion order.
package registry

import (
	"fmt"
	"sync"
)

// Key is implemented by registry keys that can reject themselves.
type Key interface {
	comparable
	Valid() bool
}

// BaseRegistry maps keys to items. List and Keys return items in the order
// they were registered.
type BaseRegistry[K Key, T any] struct {
	mu    sync.RWMutex
	items map[K]T
	order []K
}

func NewBaseRegistry[K Key, T any]() *BaseRegistry[K, T] {
	return &BaseRegistry[K, T]{
		items: make(map[K]T),
	}
}

func (r *BaseRegistry[K, T]) Register(key K, item T) error {
	if !key.Valid() {
		return fmt.Errorf("invalid key %v", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[key]; exists {
		return fmt.Errorf("item %v already registered", key)
	}

	r.items[key] = item
	r.order = append(r.order, key)
	return nil
}

func (r *BaseRegistry[K, T]) Get(key K) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[key]
	return item, exists
}

// Find returns the first registered item whose key satisfies match.
func (r *BaseRegistry[K, T]) Find(match func(K) bool) (K, T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range r.order {
		if match(k) {
			return k, r.items[k], true
		}
	}
	var zeroK K
	var zeroT T
	return zeroK, zeroT, false
}

func (r *BaseRegistry[K, T]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]K(nil), r.order...)
}

func (r *BaseRegistry[K, T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]T, 0, len(r.order))
	for _, k := range r.order {
		items = append(items, r.items[k])
	}
	return items
}

func (r *BaseRegistry[K, T]) Remove(key K) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[key]; !exists {
		return fmt.Errorf("item %v not found", key)
	}

	delete(r.items, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Replace swaps the whole content in one step. Readers see either the old
// or the new set, never a mix. Invalid and duplicate keys are skipped and
// returned.
func (r *BaseRegistry[K, T]) Replace(keys []K, items []T) []K {
	next := make(map[K]T, len(keys))
	order := make([]K, 0, len(keys))
	var rejected []K

	for i, k := range keys {
		if i >= len(items) {
			break
		}
		if !k.Valid() {
			rejected = append(rejected, k)
			continue
		}
		if _, dup := next[k]; dup {
			rejected = append(rejected, k)
			continue
		}
		next[k] = items[i]
		order = append(order, k)
	}

	r.mu.Lock()
	r.items = next
	r.order = order
	r.mu.Unlock()

	return rejected
}

func (r *BaseRegistry[K, T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}

func (r *BaseRegistry[K, T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = make(map[K]T)
	r.order = nil
}

// Name is a string key that is valid when non-empty.
type Name string

func (n Name) Valid() bool { return n != "" }
