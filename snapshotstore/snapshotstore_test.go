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

package snapshotstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/blobstore"
	"github.com/dolthub/eventstore/tablestore"
)

func testDoc() *eventstore.ObjectDocument {
	return &eventstore.ObjectDocument{
		ObjectID:   "A",
		ObjectName: "Item",
		Active: eventstore.StreamInformation{
			StreamID:       "A-0000000000",
			CurrentVersion: 10,
		},
		SchemaVersion: eventstore.DocumentSchemaVersion,
	}
}

func snap(version int, name string) eventstore.Snapshot {
	return eventstore.Snapshot{
		Version:       version,
		Name:          name,
		AggregateType: "Item",
		Data:          json.RawMessage(`{"state":"s"}`),
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func stores(t *testing.T) []SnapshotStore {
	t.Helper()
	return []SnapshotStore{
		NewBlobSnapshotStore(blobstore.NewInMemoryBlobstore("snapshots"), nil),
		NewTableSnapshotStore(tablestore.NewInMemoryTableStore("snapshots"), nil),
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	doc := testDoc()

	for _, s := range stores(t) {
		require.NoError(t, s.Set(ctx, doc, snap(5, "")))

		got, err := s.Get(ctx, doc, 5, "")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, doc.Active.StreamID, got.StreamID)
		assert.Equal(t, 5, got.Version)
		assert.Equal(t, json.RawMessage(`{"state":"s"}`), got.Data)
	}
}

func TestGetAbsentReturnsNil(t *testing.T) {
	ctx := context.Background()
	doc := testDoc()

	for _, s := range stores(t) {
		got, err := s.Get(ctx, doc, 99, "")
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestSetIsUpsert(t *testing.T) {
	ctx := context.Background()
	doc := testDoc()

	for _, s := range stores(t) {
		require.NoError(t, s.Set(ctx, doc, snap(5, "")))

		replaced := snap(5, "")
		replaced.Data = json.RawMessage(`{"state":"new"}`)
		require.NoError(t, s.Set(ctx, doc, replaced))

		got, err := s.Get(ctx, doc, 5, "")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, json.RawMessage(`{"state":"new"}`), got.Data)
	}
}

func TestNamedSnapshotsAreDistinct(t *testing.T) {
	ctx := context.Background()
	doc := testDoc()

	for _, s := range stores(t) {
		require.NoError(t, s.Set(ctx, doc, snap(5, "")))
		require.NoError(t, s.Set(ctx, doc, snap(5, "projA")))

		got, err := s.Get(ctx, doc, 5, "projA")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "projA", got.Name)

		got, err = s.Get(ctx, doc, 5, "")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Empty(t, got.Name)
	}
}

func TestListSortedDescending(t *testing.T) {
	ctx := context.Background()
	doc := testDoc()

	for _, s := range stores(t) {
		for _, v := range []int{3, 100, 7} {
			require.NoError(t, s.Set(ctx, doc, snap(v, "")))
		}

		snaps, err := s.List(ctx, doc)
		require.NoError(t, err)
		require.Len(t, snaps, 3)
		assert.Equal(t, 100, snaps[0].Version)
		assert.Equal(t, 7, snaps[1].Version)
		assert.Equal(t, 3, snaps[2].Version)
	}
}

func TestListEmptyStream(t *testing.T) {
	ctx := context.Background()
	doc := testDoc()

	for _, s := range stores(t) {
		snaps, err := s.List(ctx, doc)
		require.NoError(t, err)
		assert.Empty(t, snaps)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	ctx := context.Background()
	doc := testDoc()

	for _, s := range stores(t) {
		require.NoError(t, s.Set(ctx, doc, snap(5, "")))

		existed, err := s.Delete(ctx, doc, 5, "")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = s.Delete(ctx, doc, 5, "")
		require.NoError(t, err)
		assert.False(t, existed)
	}
}

func TestSetValidation(t *testing.T) {
	ctx := context.Background()

	for _, s := range stores(t) {
		doc := testDoc()
		doc.Active.StreamID = ""
		assert.True(t, eventstore.IsInvalidArgument(s.Set(ctx, doc, snap(1, ""))))

		assert.True(t, eventstore.IsInvalidArgument(s.Set(ctx, testDoc(), snap(-3, ""))))
	}
}
