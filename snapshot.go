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
	"encoding/json"
	"time"
)

// Snapshot is a materialized aggregate state at a specific stream version,
// addressed by (stream, version[, name]).
type Snapshot struct {
	StreamID      string          `json:"streamIdentifier"`
	Version       int             `json:"version"`
	Name          string          `json:"name,omitempty"`
	AggregateType string          `json:"aggregateType,omitempty"`
	Data          json.RawMessage `json:"data"`
	CreatedAt     time.Time       `json:"createdAt"`
}
