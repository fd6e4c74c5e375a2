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

package memory

import (
	"context"
	"strings"

	"github.com/kadirpekel/conductor/pkg/orcherr"
)

// Default working-memory summarization thresholds, ported from hector's
// SummaryBufferStrategy constants (DefaultSummaryBudget/Threshold/Target).
const (
	DefaultSummaryBudgetTokens = 8000
	DefaultSummaryThreshold    = 0.85
	DefaultSummaryTarget       = 0.7
	SummaryItemPrefix          = "conversation summary: "
)

// Summarizer condenses a run of transcript text into a shorter synthetic
// summary. An LLM-backed implementation normally wraps a brain.Brain; a
// Summarizer is intentionally decoupled from pkg/brain here so memory has
// no import-time dependency on it.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Summarize is additive to the Agent's truncate-oldest rule (spec §4.4):
// when a task's transcript grows past budget*threshold tokens, it
// collapses olderText into one synthetic memory item via summarizer and
// stores it through provider, instead of only truncating - grounded on
// hector's pkg/memory/summary_buffer.go / working_strategy.go.
func Summarize(ctx context.Context, provider Provider, summarizer Summarizer, taskID, olderText string, tokenCount, budget int) (string, bool, error) {
	if budget <= 0 {
		budget = DefaultSummaryBudgetTokens
	}
	if float64(tokenCount) <= float64(budget)*DefaultSummaryThreshold {
		return "", false, nil
	}
	if strings.TrimSpace(olderText) == "" {
		return "", false, nil
	}

	summary, err := summarizer.Summarize(ctx, olderText)
	if err != nil {
		return "", false, orcherr.New(orcherr.MemoryError, "memory", "summarize", "failed to summarize older transcript", err)
	}

	_, err = provider.Add(ctx, taskID, SummaryItemPrefix+summary, AddOptions{Importance: 1.0})
	if err != nil {
		return "", false, err
	}

	return summary, true, nil
}
