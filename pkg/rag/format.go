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

import (
	"fmt"
	"strings"
)

// FormatForPrompt renders docs as numbered blocks:
//
//	[문서 1] (출처: gangnam.pdf, 관련도: 0.83)
//	content
//
// Blocks are separated by a blank line. No documents render as "".
func FormatForPrompt(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("[문서 %d] (출처: %s, 관련도: %.2f)\n%s", i+1, d.Source(), d.Score, strings.TrimSpace(d.Content))
	}
	return strings.Join(parts, "\n\n")
}

// MeanScore returns the average score of docs, or zero.
func MeanScore(docs []Document) float64 {
	if len(docs) == 0 {
		return 0
	}
	var sum float64
	for _, d := range docs {
		sum += d.Score
	}
	return sum / float64(len(docs))
}
