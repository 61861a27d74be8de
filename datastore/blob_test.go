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

package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/blobstore"
)

func testDoc() *eventstore.ObjectDocument {
	return &eventstore.ObjectDocument{
		ObjectID:   "A",
		ObjectName: "Item",
		Active: eventstore.StreamInformation{
			StreamID:       "A-0000000000",
			CurrentVersion: -1,
		},
		SchemaVersion: eventstore.DocumentSchemaVersion,
	}
}

func ev(version int, eventType, payload string) eventstore.Event {
	return eventstore.Event{
		EventVersion:  version,
		EventType:     eventType,
		SchemaVersion: "1.0.0",
		Payload:       json.RawMessage(payload),
	}
}

func TestBlobAppendBootstrap(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewInMemoryBlobstore("items")
	ds := NewBlobDataStore(bs, nil)
	doc := testDoc()

	err := ds.Append(ctx, doc, false, []eventstore.Event{ev(0, "Created", `{"x":1}`)})
	require.NoError(t, err)

	// The stream object lands at the lowercased stream path.
	data, _, err := bs.Get(ctx, "a-0000000000.json", blobstore.None)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "A", rec["objectId"])
	assert.Equal(t, "Item", rec["objectName"])
	assert.Equal(t, "*", rec["lastObjectDocumentHash"])

	events := rec["events"].([]any)
	require.Len(t, events, 1)
	first := events[0].(map[string]any)
	assert.Equal(t, float64(0), first["eventVersion"])
	assert.Equal(t, "Created", first["eventType"])
}

func TestBlobAppendReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds := NewBlobDataStore(blobstore.NewInMemoryBlobstore("items"), nil)
	doc := testDoc()

	for i := 0; i < 3; i++ {
		batch := []eventstore.Event{
			ev(i*2, "E", fmt.Sprintf(`{"n":%d}`, i*2)),
			ev(i*2+1, "E", fmt.Sprintf(`{"n":%d}`, i*2+1)),
		}
		require.NoError(t, ds.Append(ctx, doc, false, batch))
		doc.Active.CurrentVersion = i*2 + 1
	}

	events, found, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, events, 6)
	for i, e := range events {
		assert.Equal(t, i, e.EventVersion)
		assert.Equal(t, json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)), e.Payload)
	}

	// Bounded range.
	events, _, err = ds.Read(ctx, doc, 2, 4, ActiveChunk)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 2, events[0].EventVersion)
	assert.Equal(t, 4, events[2].EventVersion)
}

func TestBlobAppendConflict(t *testing.T) {
	ctx := context.Background()
	ds := NewBlobDataStore(blobstore.NewInMemoryBlobstore("items"), nil)

	// Two writers hold the same document state.
	doc1 := testDoc()
	doc1.Hash = "h1"
	doc2 := testDoc()
	doc2.Hash = "h2"

	require.NoError(t, ds.Append(ctx, doc1, false, []eventstore.Event{ev(0, "Created", `{}`)}))

	// The second writer's PrevHash no longer matches the committed marker.
	err := ds.Append(ctx, doc2, false, []eventstore.Event{ev(0, "Created", `{}`)})
	require.True(t, eventstore.IsConcurrencyConflict(err))

	events, _, err := ds.Read(ctx, doc1, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestBlobHashChainAccepted(t *testing.T) {
	ctx := context.Background()
	ds := NewBlobDataStore(blobstore.NewInMemoryBlobstore("items"), nil)

	doc := testDoc()
	doc.Hash = "h1"
	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{ev(0, "Created", `{}`)}))

	// The next writer loaded the document after the first commit.
	doc.PrevHash = "h1"
	doc.Hash = "h2"
	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{ev(1, "Updated", `{}`)}))

	events, _, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestBlobStreamClosed(t *testing.T) {
	ctx := context.Background()
	ds := NewBlobDataStore(blobstore.NewInMemoryBlobstore("items"), nil)
	doc := testDoc()

	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{
		ev(0, "Created", `{}`),
		ev(1, eventstore.ClosedEventType, `{}`),
	}))

	err := ds.Append(ctx, doc, false, []eventstore.Event{ev(2, "Late", `{}`)})
	require.True(t, eventstore.IsStreamClosed(err))

	// No write happened.
	events, _, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestBlobAppendValidation(t *testing.T) {
	ctx := context.Background()
	ds := NewBlobDataStore(blobstore.NewInMemoryBlobstore("items"), nil)

	err := ds.Append(ctx, testDoc(), false, nil)
	assert.True(t, eventstore.IsInvalidArgument(err))

	doc := testDoc()
	doc.Active.StreamID = ""
	err = ds.Append(ctx, doc, false, []eventstore.Event{ev(0, "Created", `{}`)})
	assert.True(t, eventstore.IsInvalidArgument(err))
}

func TestBlobRemoveEventsForFailedCommit(t *testing.T) {
	ctx := context.Background()
	ds := NewBlobDataStore(blobstore.NewInMemoryBlobstore("items"), nil)
	doc := testDoc()

	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{
		ev(0, "Created", `{}`), ev(1, "E", `{}`), ev(2, "E", `{}`),
	}))

	removed, err := ds.RemoveEventsForFailedCommit(ctx, doc, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	events, _, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].EventVersion)

	// Re-running the same recovery is a no-op.
	removed, err = ds.RemoveEventsForFailedCommit(ctx, doc, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestBlobRemoveEventsMissingStream(t *testing.T) {
	ctx := context.Background()
	ds := NewBlobDataStore(blobstore.NewInMemoryBlobstore("items"), nil)

	removed, err := ds.RemoveEventsForFailedCommit(ctx, testDoc(), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestBlobChunkedStream(t *testing.T) {
	ctx := context.Background()
	ds := NewBlobDataStore(blobstore.NewInMemoryBlobstore("items"), nil)

	doc := testDoc()
	doc.Active.ChunkingEnabled = true
	doc.Active.ChunkSize = 2
	doc.Active.Chunks = []eventstore.StreamChunk{{ChunkID: 0, FirstEventVersion: 0, LastEventVersion: -1}}

	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{ev(0, "E", `{}`), ev(1, "E", `{}`)}))
	doc.Active.CurrentVersion = 1
	doc.Active.Chunks[0].LastEventVersion = 1

	// Roll to the next chunk.
	doc.Active.Chunks = append(doc.Active.Chunks, eventstore.StreamChunk{ChunkID: 1, FirstEventVersion: 2, LastEventVersion: -1})
	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{ev(2, "E", `{}`), ev(3, "E", `{}`)}))
	doc.Active.CurrentVersion = 3
	doc.Active.Chunks[1].LastEventVersion = 3

	// A full read spans both chunk objects.
	events, found, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, events, 4)

	// A bounded read touches only the covering chunk.
	events, _, err = ds.Read(ctx, doc, 2, 3, ActiveChunk)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[0].EventVersion)
}

func TestBlobReadStream(t *testing.T) {
	ctx := context.Background()
	ds := NewBlobDataStore(blobstore.NewInMemoryBlobstore("items"), nil)
	doc := testDoc()

	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{
		ev(0, "E", `{}`), ev(1, "E", `{}`), ev(2, "E", `{}`),
	}))

	it := ds.ReadStream(ctx, doc, 1, UnboundedVersion)
	defer it.Close()

	var versions []int
	for {
		e, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		versions = append(versions, e.EventVersion)
	}
	assert.Equal(t, []int{1, 2}, versions)
}

func TestBlobPreserveTimestamps(t *testing.T) {
	ctx := context.Background()
	ds := NewBlobDataStore(blobstore.NewInMemoryBlobstore("items"), nil)
	doc := testDoc()

	e := ev(0, "E", `{}`)
	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{e}))

	events, _, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
}
