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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dolthub/eventstore"
)

func TestBlobPath(t *testing.T) {
	assert.Equal(t, "a-0000000000.json", BlobPath("A-0000000000", -1))
	assert.Equal(t, "a-0000000000-0000000003.json", BlobPath("A-0000000000", 3))
}

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "A-0000000000", PartitionKey("A-0000000000", -1))
	assert.Equal(t, "A-0000000000_0000000003", PartitionKey("A-0000000000", 3))
}

func TestRowKeySortable(t *testing.T) {
	assert.Equal(t, "00000000000000000000", RowKey(0))
	assert.Less(t, RowKey(9), RowKey(10))
	assert.Less(t, RowKey(99), RowKey(100))
}

func TestContinuationRowKey(t *testing.T) {
	primary := RowKey(5)
	assert.Equal(t, primary+"_p1", ContinuationRowKey(primary, 1))
	// Continuation keys sort after their primary and before the next version.
	assert.Less(t, primary, ContinuationRowKey(primary, 1))
	assert.Less(t, ContinuationRowKey(primary, 3), RowKey(6))
}

func TestStreamPaths(t *testing.T) {
	doc := testDoc()
	assert.Equal(t, []string{"a-0000000000.json"}, StreamPaths(doc))

	doc.Active.ChunkingEnabled = true
	doc.Active.Chunks = []eventstore.StreamChunk{
		{ChunkID: 0, FirstEventVersion: 0, LastEventVersion: 9},
		{ChunkID: 1, FirstEventVersion: 10, LastEventVersion: -1},
	}
	assert.Equal(t, []string{
		"a-0000000000-0000000000.json",
		"a-0000000000-0000000001.json",
	}, StreamPaths(doc))
}
