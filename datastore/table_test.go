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
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/tablestore"
)

func newTableDS(t *testing.T) (*TableDataStore, *tablestore.InMemoryTableStore) {
	t.Helper()
	ts := tablestore.NewInMemoryTableStore("events")
	return NewTableDataStore(ts, eventstore.DefaultSettings(), nil), ts
}

func largePayload(t *testing.T, n int) json.RawMessage {
	t.Helper()
	raw := make([]byte, n)
	_, err := rand.New(rand.NewSource(7)).Read(raw)
	require.NoError(t, err)
	// Wrap as a JSON string so the payload stays opaque-json.
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	return data
}

func TestTableAppendReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds, _ := newTableDS(t)
	doc := testDoc()

	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{
		ev(0, "Created", `{"x":1}`),
		ev(1, "Updated", `{"x":2}`),
	}))

	events, found, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, events, 2)
	assert.Equal(t, "Created", events[0].EventType)
	assert.Equal(t, json.RawMessage(`{"x":2}`), events[1].Payload)
}

func TestTableLargePayloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds, ts := newTableDS(t)
	doc := testDoc()

	// A 200 KiB payload of random bytes defeats compression and spans
	// multiple 60 KiB chunks.
	payload := largePayload(t, 200*1024)
	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{ev(0, "Big", string(payload))}))

	// Continuation rows exist beside the primary row.
	rows, err := tablestore.QueryAll(ctx, ts, tablestore.Query{PartitionKey: PartitionKey(doc.Active.StreamID, -1)})
	require.NoError(t, err)
	require.Greater(t, len(rows), 1)

	events, _, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, bytes.Equal(payload, events[0].Payload))
}

func TestTableLargePayloadRemove(t *testing.T) {
	ctx := context.Background()
	ds, ts := newTableDS(t)
	doc := testDoc()

	payload := largePayload(t, 200*1024)
	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{ev(0, "Big", string(payload))}))

	removed, err := ds.RemoveEventsForFailedCommit(ctx, doc, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// Primary and every continuation row are gone.
	rows, err := tablestore.QueryAll(ctx, ts, tablestore.Query{PartitionKey: PartitionKey(doc.Active.StreamID, -1)})
	require.NoError(t, err)
	assert.Empty(t, rows)

	removed, err = ds.RemoveEventsForFailedCommit(ctx, doc, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestTableStreamClosed(t *testing.T) {
	ctx := context.Background()
	ds, _ := newTableDS(t)
	doc := testDoc()

	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{
		ev(0, "Created", `{}`),
		ev(1, eventstore.ClosedEventType, `{}`),
	}))

	err := ds.Append(ctx, doc, false, []eventstore.Event{ev(2, "Late", `{}`)})
	require.True(t, eventstore.IsStreamClosed(err))

	events, _, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestTableClosedGuardSkipsContinuationRows(t *testing.T) {
	ctx := context.Background()
	ds, _ := newTableDS(t)
	doc := testDoc()

	// The newest row keys belong to the large payload's continuation rows;
	// the tail probe must skip them to find the primary event.
	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{
		ev(0, "Big", string(largePayload(t, 200*1024))),
	}))

	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{ev(1, "Next", `{}`)}))
}

func TestTableDuplicateVersionConflict(t *testing.T) {
	ctx := context.Background()
	ds, _ := newTableDS(t)
	doc := testDoc()

	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{ev(0, "Created", `{}`)}))

	err := ds.Append(ctx, doc, false, []eventstore.Event{ev(0, "Created", `{}`)})
	require.True(t, eventstore.IsConcurrencyConflict(err))
}

func TestTableRangeRead(t *testing.T) {
	ctx := context.Background()
	ds, _ := newTableDS(t)
	doc := testDoc()

	var batch []eventstore.Event
	for i := 0; i < 10; i++ {
		batch = append(batch, ev(i, "E", `{}`))
	}
	require.NoError(t, ds.Append(ctx, doc, false, batch))

	events, _, err := ds.Read(ctx, doc, 3, 6, ActiveChunk)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, 3, events[0].EventVersion)
	assert.Equal(t, 6, events[3].EventVersion)
}

func TestTableLargeBatchSplit(t *testing.T) {
	ctx := context.Background()
	ds, _ := newTableDS(t)
	doc := testDoc()

	// More rows than a single atomic batch may carry.
	var batch []eventstore.Event
	for i := 0; i < tablestore.MaxBatchSize+20; i++ {
		batch = append(batch, ev(i, "E", `{}`))
	}
	require.NoError(t, ds.Append(ctx, doc, false, batch))

	events, _, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	assert.Len(t, events, tablestore.MaxBatchSize+20)
}

func TestTableReadStream(t *testing.T) {
	ctx := context.Background()
	ds, _ := newTableDS(t)
	doc := testDoc()

	var batch []eventstore.Event
	for i := 0; i < 250; i++ {
		batch = append(batch, ev(i, "E", `{}`))
	}
	require.NoError(t, ds.Append(ctx, doc, false, batch))

	it := ds.ReadStream(ctx, doc, 0, UnboundedVersion)
	defer it.Close()

	count := 0
	prev := -1
	for {
		e, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		require.Greater(t, e.EventVersion, prev)
		prev = e.EventVersion
		count++
	}
	assert.Equal(t, 250, count)
}

func TestTableChunkedPartitions(t *testing.T) {
	ctx := context.Background()
	ds, ts := newTableDS(t)

	doc := testDoc()
	doc.Active.ChunkingEnabled = true
	doc.Active.ChunkSize = 2
	doc.Active.Chunks = []eventstore.StreamChunk{{ChunkID: 0, FirstEventVersion: 0, LastEventVersion: -1}}

	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{ev(0, "E", `{}`), ev(1, "E", `{}`)}))
	doc.Active.CurrentVersion = 1
	doc.Active.Chunks[0].LastEventVersion = 1
	doc.Active.Chunks = append(doc.Active.Chunks, eventstore.StreamChunk{ChunkID: 1, FirstEventVersion: 2, LastEventVersion: -1})

	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{ev(2, "E", `{}`)}))
	doc.Active.CurrentVersion = 2
	doc.Active.Chunks[1].LastEventVersion = 2

	// Each chunk has its own partition.
	rows, err := tablestore.QueryAll(ctx, ts, tablestore.Query{PartitionKey: PartitionKey(doc.Active.StreamID, 0)})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	rows, err = tablestore.QueryAll(ctx, ts, tablestore.Query{PartitionKey: PartitionKey(doc.Active.StreamID, 1)})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	events, _, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestTableMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds, _ := newTableDS(t)
	doc := testDoc()

	e := ev(0, "E", `{}`)
	e.Metadata = map[string]string{"source": "test", "traceId": "t-1"}
	require.NoError(t, ds.Append(ctx, doc, false, []eventstore.Event{e}))

	events, _, err := ds.Read(ctx, doc, 0, UnboundedVersion, ActiveChunk)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e.Metadata, events[0].Metadata)
}

func TestRouterResolution(t *testing.T) {
	ds, _ := newTableDS(t)

	r := NewRouter()
	r.Register("primary", ds)

	doc := testDoc()
	doc.Active.DataStore = "primary"
	got, err := r.For(doc)
	require.NoError(t, err)
	assert.Equal(t, ds, got)

	doc.Active.DataStore = ""
	doc.Active.ConnectionName = "primary"
	got, err = r.For(doc)
	require.NoError(t, err)
	assert.Equal(t, ds, got)

	doc.Active.ConnectionName = "unknown"
	_, err = r.For(doc)
	assert.True(t, eventstore.IsInvalidArgument(err))
}
