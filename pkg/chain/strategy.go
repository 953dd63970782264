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

package chain

import "github.com/kadirpekel/sitewise/pkg/rag"

// SelectStrategy picks the evidence combination. Successful tool results win over
// documents, failed ones count as none; the realtime hint plays no part.
func SelectStrategy(sel Selection, docs []rag.Document) Strategy {
	switch {
	case sel.HasResults() && len(docs) > 0:
		return StrategyHybrid
	case sel.HasResults():
		return StrategyToolOnly
	case len(docs) > 0:
		return StrategyLocalOnly
	default:
		return StrategyGeneral
	}
}
