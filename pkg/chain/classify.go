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

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// realtimeTokens mark queries about current events. ASCII tokens match
// whole words of the lowercased query; Hangul tokens match as substrings
// since particles attach directly to the stem.
var realtimeTokens = []string{
	"latest", "now", "current", "currently", "recent", "recently", "today", "yesterday", "tomorrow",
	"this year", "this month", "trend", "trends", "trending",
	"최신", "현재", "지금", "요즘", "트렌드", "올해", "이번 달", "최근", "오늘", "어제", "내일",
	"2024", "2025",
}

// trivialTokens mark greetings, thanks and farewells.
var trivialTokens = []string{
	"hello", "hi", "hey", "thanks", "thank", "bye", "goodbye",
	"안녕", "감사", "고마워", "잘가", "굿바이",
}

// trivialMaxRunes is the longest query still considered small talk.
const trivialMaxRunes = 10

// Classifier holds the clock used for year tokens.
type Classifier struct {
	now func() time.Time
}

// NewClassifier returns a Classifier reading the given clock; nil uses
// time.Now.
func NewClassifier(now func() time.Time) *Classifier {
	if now == nil {
		now = time.Now
	}
	return &Classifier{now: now}
}

// NeedsRealtime reports whether query asks about recent or current
// information. The current and previous calendar year count as recency
// tokens in addition to the fixed list.
func (c *Classifier) NeedsRealtime(query string) bool {
	q := strings.ToLower(query)
	for _, token := range realtimeTokens {
		if containsToken(q, token) {
			return true
		}
	}
	year := c.now().Year()
	return containsToken(q, strconv.Itoa(year)) || containsToken(q, strconv.Itoa(year-1))
}

// containsToken matches an ASCII token only where it is not glued to other
// ASCII letters or digits, so "now" skips "know" and "2025" still hits
// "2025년". Other tokens match anywhere.
func containsToken(q, token string) bool {
	if !isASCII(token) {
		return strings.Contains(q, token)
	}
	for off := 0; off <= len(q)-len(token); {
		i := strings.Index(q[off:], token)
		if i < 0 {
			return false
		}
		start, end := off+i, off+i+len(token)
		if (start == 0 || !isWordByte(q[start-1])) && (end == len(q) || !isWordByte(q[end])) {
			return true
		}
		off = start + 1
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

var defaultClassifier = NewClassifier(nil)

// NeedsRealtime classifies query against the wall clock.
func NeedsRealtime(query string) bool {
	return defaultClassifier.NeedsRealtime(query)
}

// IsTrivial reports whether query is short small talk that needs no tool
// reasoning.
func IsTrivial(query string) bool {
	q := strings.TrimSpace(query)
	if q == "" || utf8.RuneCountInString(q) > trivialMaxRunes {
		return false
	}
	q = strings.ToLower(q)
	for _, token := range trivialTokens {
		if strings.Contains(q, token) {
			return true
		}
	}
	return false
}

// DefaultMaxHistory is the number of prior user turns ExpandQuery keeps.
const DefaultMaxHistory = 2

// ExpandQuery prefixes query with the last maxHistory user turns, space
// joined in chronological order. Assistant turns are ignored. A
// non-positive maxHistory uses DefaultMaxHistory.
func ExpandQuery(query string, history []Turn, maxHistory int) string {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}

	var user []string
	for _, t := range history {
		if t.Role == RoleUser && strings.TrimSpace(t.Content) != "" {
			user = append(user, t.Content)
		}
	}
	if len(user) == 0 {
		return query
	}
	if len(user) > maxHistory {
		user = user[len(user)-maxHistory:]
	}
	return strings.Join(append(user, query), " ")
}
