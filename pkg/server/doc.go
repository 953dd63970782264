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

// Package server exposes a chain.Chain over HTTP.
//
// Routes:
//
//	POST /api/rag-chat         one JSON answer
//	POST /api/rag-chat-stream  server-sent events, one JSON object per event
//	GET  /health               liveness and tool count
//	GET  /                     service info
//	GET  /metrics              Prometheus metrics, when enabled
//
// Every response carries an X-Request-ID header. An incoming X-Request-ID
// is echoed; otherwise a UUID is generated.
package server
