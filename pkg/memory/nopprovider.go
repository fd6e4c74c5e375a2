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

	"github.com/google/uuid"
)

// NopProvider is a Memory Provider that discards everything. Teams that
// don't configure a memory backend get this instead of a nil interface,
// so Agent/Tool code calling Provider methods never needs a nil check.
type NopProvider struct{}

func (NopProvider) Add(context.Context, string, any, AddOptions) (string, error) {
	return uuid.NewString(), nil
}

func (NopProvider) Search(context.Context, string, string, SearchOptions) ([]Item, error) {
	return nil, nil
}

func (NopProvider) List(context.Context, string, ListOptions) ([]Item, error) {
	return nil, nil
}

func (NopProvider) Stats(context.Context, string) (Stats, error) {
	return Stats{CountByAgent: map[string]int{}}, nil
}
