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

package brain

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter approximates token counts for the Agent's budget-discipline rule
// (spec §4.4). It is intentionally approximate: exact counts depend on the
// provider's own tokenizer, which the core has no access to without
// linking a concrete provider SDK.
type Counter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// DefaultCounter is shared process-wide; tiktoken's BPE tables are
// expensive to build and safe to reuse across every Brain instance.
var DefaultCounter = &Counter{}

func (c *Counter) encoder() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("failed to load tiktoken encoding, falling back to rune-count estimation", "error", err)
			return
		}
		c.enc = enc
	})
	return c.enc
}

// Count returns the approximate token count of s. Falls back to a
// characters-per-token-4 heuristic if the tiktoken encoding failed to
// load (e.g. no network access to fetch its BPE ranks file at first use).
func (c *Counter) Count(s string) int {
	enc := c.encoder()
	if enc == nil {
		return (len(s) + 3) / 4
	}
	return len(enc.Encode(s, nil, nil))
}

// CountMessages sums the approximate token cost of a full message slice,
// including a small per-message overhead for role/name framing.
func (c *Counter) CountMessages(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += 4 // role + framing overhead, matches OpenAI's documented estimate
		total += c.Count(m.Content)
		for _, tc := range m.ToolCalls {
			total += c.Count(tc.Name) + c.Count(tc.Arguments)
		}
	}
	return total
}
