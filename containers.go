// Copyright 2026 Dolthub, Inc.
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

package eventstore

import (
	"context"
	"strings"
	"sync"
)

// verifiedContainers is the process-wide set of container/table names already
// ensured to exist. Membership is additive only and survives for the life of
// the process; names are case-insensitive.
var verifiedContainers = struct {
	mu    sync.Mutex
	names map[string]struct{}
}{names: make(map[string]struct{})}

// EnsureContainer runs |create| exactly once per container name for the life
// of the process. The name is recorded only after |create| succeeds, so a
// failed create is retried on the next call.
func EnsureContainer(ctx context.Context, name string, create func(context.Context) error) error {
	key := strings.ToLower(name)

	verifiedContainers.mu.Lock()
	defer verifiedContainers.mu.Unlock()

	if _, ok := verifiedContainers.names[key]; ok {
		return nil
	}
	if err := create(ctx); err != nil {
		return err
	}
	verifiedContainers.names[key] = struct{}{}
	return nil
}

// ResetVerifiedContainers clears the verified set. Tests only.
func ResetVerifiedContainers() {
	verifiedContainers.mu.Lock()
	defer verifiedContainers.mu.Unlock()
	verifiedContainers.names = make(map[string]struct{})
}
