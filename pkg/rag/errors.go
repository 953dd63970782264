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

package rag

import "fmt"

// SearchError is returned when a retrieval stage fails.
type SearchError struct {
	Component string // "embedder" or "vector"
	Operation string
	Query     string
	Err       error
}

func (e *SearchError) Error() string {
	msg := fmt.Sprintf("[%s:%s] search failed", e.Component, e.Operation)
	if e.Query != "" {
		query := []rune(e.Query)
		if len(query) > 50 {
			query = append(query[:50], []rune("...")...)
		}
		msg += fmt.Sprintf(" (query: %q)", string(query))
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// LoadError is returned when a file cannot be parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("[loader:parse] %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IndexError is returned when chunks cannot be embedded or stored.
type IndexError struct {
	Operation string
	Count     int
	Err       error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("[store:%s] %d documents: %v", e.Operation, e.Count, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
