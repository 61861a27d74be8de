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

// Package datastore appends and reads the per-stream event logs on either
// substrate: a single JSON object per stream (or chunk) on the blob store, or
// one row per event on the table store. All coordination rides substrate
// preconditions; losers of a race observe a concurrency conflict and retry
// with a reloaded document.
package datastore

import (
	"context"

	"github.com/dolthub/eventstore"
)

// UnboundedVersion marks an open until-bound on reads.
const UnboundedVersion = -1

// ActiveChunk selects the document's active chunk on reads.
const ActiveChunk = -1

// DataStore is the event-stream data plane for one substrate.
type DataStore interface {
	// Append writes |events| to the document's active stream. The caller
	// assigns event versions starting at document.Active.CurrentVersion+1.
	// Timestamps are set to now unless |preserveTs| (used by migrations).
	Append(ctx context.Context, doc *eventstore.ObjectDocument, preserveTs bool, events []eventstore.Event) error

	// Read returns the committed events with versions in [start, until]
	// inclusive; until == UnboundedVersion leaves the range open above, and
	// chunk == ActiveChunk derives chunks from the document. ok is false
	// when the stream has never been written.
	Read(ctx context.Context, doc *eventstore.ObjectDocument, start, until, chunk int) ([]eventstore.Event, bool, error)

	// ReadStream returns a lazy, single-pass iterator over the same range
	// as Read. Iteration stops promptly once ctx is cancelled.
	ReadStream(ctx context.Context, doc *eventstore.ObjectDocument, start, until int) EventIterator

	// RemoveEventsForFailedCommit deletes [from, until] from the active
	// chunk after a partial append failed downstream. Idempotent; absent
	// events count as already removed. Returns the number removed.
	RemoveEventsForFailedCommit(ctx context.Context, doc *eventstore.ObjectDocument, from, until int) (int, error)
}

// EventIterator is a single-pass cursor over a stream range.
type EventIterator interface {
	// Next returns the next event. ok is false once the range is exhausted
	// or after an error.
	Next(ctx context.Context) (eventstore.Event, bool, error)

	// Close releases the iterator. Safe to call more than once.
	Close() error
}

// Router resolves a document's data-store name to a registered DataStore.
// Resolution prefers the modern per-concern name and falls back to the
// deprecated single connection name.
type Router struct {
	stores map[string]DataStore
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{stores: make(map[string]DataStore)}
}

// Register binds |name| to |ds|, replacing any previous binding.
func (r *Router) Register(name string, ds DataStore) {
	r.stores[name] = ds
}

// For returns the DataStore serving |doc|'s active stream.
func (r *Router) For(doc *eventstore.ObjectDocument) (DataStore, error) {
	name := doc.Active.DataStoreName()
	if name == "" {
		return nil, eventstore.InvalidArgumentError{
			Name:   "document.active.dataStore",
			Reason: "document carries no data-store routing",
		}
	}
	ds, ok := r.stores[name]
	if !ok {
		return nil, eventstore.InvalidArgumentError{
			Name:   "document.active.dataStore",
			Reason: "no data store registered for name " + name,
		}
	}
	return ds, nil
}

func validateAppend(doc *eventstore.ObjectDocument, events []eventstore.Event) error {
	if len(events) == 0 {
		return eventstore.InvalidArgumentError{Name: "events", Reason: "must contain at least one event"}
	}
	if doc == nil || doc.Active.StreamID == "" {
		return eventstore.InvalidArgumentError{Name: "document.active.streamIdentifier", Reason: "must not be empty"}
	}
	return nil
}
