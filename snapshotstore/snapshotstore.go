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

// Package snapshotstore persists versioned aggregate snapshots keyed by
// (stream, version, name) on either substrate. Writes are unconditional
// upserts; a snapshot is derived state and the newest write wins.
package snapshotstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/dolthub/eventstore"
)

// SnapshotStore stores and enumerates aggregate snapshots.
type SnapshotStore interface {
	// Set upserts |snap| under its (stream, version, name) key.
	Set(ctx context.Context, doc *eventstore.ObjectDocument, snap eventstore.Snapshot) error

	// Get returns the snapshot at (version, name), or nil when absent.
	Get(ctx context.Context, doc *eventstore.ObjectDocument, version int, name string) (*eventstore.Snapshot, error)

	// List returns every snapshot of the document's active stream, newest
	// version first.
	List(ctx context.Context, doc *eventstore.ObjectDocument) ([]eventstore.Snapshot, error)

	// Delete removes the snapshot at (version, name), reporting whether one
	// existed.
	Delete(ctx context.Context, doc *eventstore.ObjectDocument, version int, name string) (bool, error)
}

// snapshotVersionKey is the zero-padded, lexicographically sortable version
// component of a snapshot key.
func snapshotVersionKey(version int, name string) string {
	key := fmt.Sprintf("%020d", version)
	if name != "" {
		key += "_" + name
	}
	return key
}

// snapshotBlobKey is the blob path of a snapshot.
func snapshotBlobKey(streamID string, version int, name string) string {
	return "snapshot/" + strings.ToLower(streamID) + "-" + snapshotVersionKey(version, name) + ".json"
}

// snapshotPartition is the table partition of a stream's snapshots.
func snapshotPartition(objectName, streamID string) string {
	return strings.ToLower(objectName) + "_" + streamID
}

func validateSnapshot(doc *eventstore.ObjectDocument, snap eventstore.Snapshot) error {
	if doc.Active.StreamID == "" {
		return eventstore.InvalidArgumentError{Name: "document", Reason: "active stream identifier is empty"}
	}
	if snap.Version < 0 {
		return eventstore.InvalidArgumentError{Name: "snapshot", Reason: "version must be non-negative"}
	}
	return nil
}
