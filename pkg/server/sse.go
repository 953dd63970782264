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

package server

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kadirpekel/sitewise/pkg/chain"
	"github.com/kadirpekel/sitewise/pkg/rag"
	"github.com/kadirpekel/sitewise/pkg/tool"
)

// SSE event names on the wire. Answer chunks travel as "answer".
const (
	sseSources     = "sources"
	sseToolResults = "tool_results"
	sseToolsUsed   = "tools_used"
	sseAnswer      = "answer"
	sseError       = "error"
	sseDone        = "done"
)

// sseEvent is the JSON object written per stream event. Every event has an
// "event" key naming it; the payload key depends on the event.
type sseEvent map[string]any

func toSSE(e chain.Event) sseEvent {
	switch e.Type {
	case chain.EventSources:
		sources := e.Sources
		if sources == nil {
			sources = []rag.Document{}
		}
		return sseEvent{"event": sseSources, "sources": sources}
	case chain.EventToolResults:
		results := e.ToolResults
		if results == nil {
			results = map[string]tool.Result{}
		}
		return sseEvent{"event": sseToolResults, "tool_results": results}
	case chain.EventToolsUsed:
		used := e.ToolsUsed
		if used == nil {
			used = []string{}
		}
		return sseEvent{"event": sseToolsUsed, "tools_used": used}
	case chain.EventAnswerChunk:
		return sseEvent{"event": sseAnswer, "content": e.Chunk}
	case chain.EventError:
		return sseEvent{"event": sseError, "message": e.Error}
	default:
		return sseEvent{"event": sseDone, "strategy": e.Strategy}
	}
}

func writeSSE(w io.Writer, e sseEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
