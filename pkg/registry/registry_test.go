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

package registry

import (
	"fmt"
	"sync"
	"testing"
)

type pairKey struct {
	A, B string
}

func (k pairKey) Valid() bool { return k.A != "" && k.B != "" }

func TestBaseRegistry_Register(t *testing.T) {
	r := NewBaseRegistry[Name, int]()

	tests := []struct {
		name    string
		key     Name
		wantErr bool
	}{
		{"valid", "one", false},
		{"empty key", "", true},
		{"duplicate", "one", true},
		{"second valid", "two", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.key, 1)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}

	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
}

func TestBaseRegistry_OrderIsInsertion(t *testing.T) {
	r := NewBaseRegistry[Name, string]()
	for _, n := range []string{"c", "a", "b"} {
		if err := r.Register(Name(n), n); err != nil {
			t.Fatal(err)
		}
	}

	got := fmt.Sprint(r.List())
	if got != "[c a b]" {
		t.Errorf("List() = %s, want [c a b]", got)
	}

	if err := r.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(r.Keys()); got != "[c b]" {
		t.Errorf("Keys() after remove = %s", got)
	}
	if err := r.Remove("a"); err == nil {
		t.Error("expected error removing missing key")
	}
}

func TestBaseRegistry_Replace(t *testing.T) {
	r := NewBaseRegistry[pairKey, int]()
	_ = r.Register(pairKey{"p", "old"}, 0)

	rejected := r.Replace(
		[]pairKey{{"p", "x"}, {"", "bad"}, {"p", "x"}, {"q", "y"}},
		[]int{1, 2, 3, 4},
	)

	if len(rejected) != 2 {
		t.Errorf("rejected = %v, want 2 entries", rejected)
	}
	if _, ok := r.Get(pairKey{"p", "old"}); ok {
		t.Error("old entry survived Replace")
	}
	if v, ok := r.Get(pairKey{"p", "x"}); !ok || v != 1 {
		t.Errorf("Get(p/x) = %v, %v; want first value", v, ok)
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
}

func TestBaseRegistry_Find(t *testing.T) {
	r := NewBaseRegistry[pairKey, string]()
	_ = r.Register(pairKey{"a", "search"}, "first")
	_ = r.Register(pairKey{"b", "search"}, "second")

	k, v, ok := r.Find(func(k pairKey) bool { return k.B == "search" })
	if !ok || k.A != "a" || v != "first" {
		t.Errorf("Find() = %v %v %v, want provider a", k, v, ok)
	}

	if _, _, ok := r.Find(func(k pairKey) bool { return k.B == "none" }); ok {
		t.Error("Find() matched a missing key")
	}
}

func TestBaseRegistry_Concurrent(t *testing.T) {
	r := NewBaseRegistry[Name, int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(Name(fmt.Sprintf("k%d", i)), i)
			_ = r.List()
		}(i)
	}
	wg.Wait()

	if r.Count() != 50 {
		t.Errorf("Count() = %d, want 50", r.Count())
	}

	r.Clear()
	if r.Count() != 0 || len(r.Keys()) != 0 {
		t.Error("Clear() left entries behind")
	}
}
