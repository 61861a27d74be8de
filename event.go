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

// Package eventstore defines the data model shared by the event-stream,
// document, snapshot and projection stores, along with the error taxonomy
// those stores surface.
package eventstore

import (
	"encoding/json"
	"time"
)

// ClosedEventType is the event type that closes a stream. Once an event of
// this type is the tail of a stream, the stream accepts no further appends;
// callers follow the continuation stream recorded on the object document.
const ClosedEventType = "EventStream.Closed"

// Event is a single immutable record in an event stream. EventVersion is
// monotonically increasing per stream, starting at 0.
type Event struct {
	EventVersion  int               `json:"eventVersion"`
	EventType     string            `json:"eventType"`
	SchemaVersion string            `json:"schemaVersion"`
	Payload       json.RawMessage   `json:"payload"`
	Timestamp     time.Time         `json:"timestamp"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// IsClosed returns true if this event closes its stream.
func (e Event) IsClosed() bool {
	return e.EventType == ClosedEventType
}
