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

package mcptoolset

import (
	"encoding/json"
	"errors"
	"strings"
)

// textPayload turns the text content of a tool result into the payload
// shape {"result": x} or {"results": [x, ...]}. Text that is itself JSON
// is decoded so search hits stay structured.
func textPayload(texts []string, isError bool) (any, error) {
	if isError {
		if len(texts) > 0 && texts[0] != "" {
			return nil, errors.New(texts[0])
		}
		return nil, errors.New("unknown error")
	}

	switch len(texts) {
	case 0:
		return map[string]any{}, nil
	case 1:
		return map[string]any{"result": decodeText(texts[0])}, nil
	default:
		results := make([]any, len(texts))
		for i, t := range texts {
			results[i] = decodeText(t)
		}
		return map[string]any{"results": results}, nil
	}
}

func decodeText(text string) any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return text
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return text
	}
	return v
}
