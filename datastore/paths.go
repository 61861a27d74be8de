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
	"fmt"
	"strings"

	"github.com/dolthub/eventstore"
)

// Path derivation. Without chunking a stream is one logical object named by
// its stream id; with chunking each chunk is its own object. On the table
// substrate the partition key plays the same role with an underscore
// separator, and row keys are 20-digit zero-padded event versions so
// lexicographic order equals version order.

// BlobPath returns the object key for a stream (chunk < 0) or one chunk.
func BlobPath(streamID string, chunk int) string {
	if chunk < 0 {
		return strings.ToLower(streamID) + ".json"
	}
	return fmt.Sprintf("%s-%010d.json", strings.ToLower(streamID), chunk)
}

// PartitionKey returns the table partition key for a stream or chunk.
func PartitionKey(streamID string, chunk int) string {
	if chunk < 0 {
		return streamID
	}
	return fmt.Sprintf("%s_%010d", streamID, chunk)
}

// RowKey returns the 20-digit zero-padded row key for an event version.
func RowKey(version int) string {
	return fmt.Sprintf("%020d", version)
}

// ContinuationRowKey returns the row key of continuation chunk |index| of a
// large payload.
func ContinuationRowKey(primary string, index int) string {
	return fmt.Sprintf("%s_p%d", primary, index)
}

// appendChunk returns the chunk targeted by an append: the document's tail
// chunk, or a negative value when chunking is disabled.
func appendChunk(doc *eventstore.ObjectDocument) int {
	if c, ok := doc.Active.CurrentChunk(); ok {
		return c.ChunkID
	}
	return -1
}

// readChunks returns the chunks covering [start, until] for a read, in order.
// A single negative value means the stream is unchunked.
func readChunks(doc *eventstore.ObjectDocument, start, until, chunk int) []int {
	if chunk >= 0 {
		return []int{chunk}
	}
	if !doc.Active.ChunkingEnabled || len(doc.Active.Chunks) == 0 {
		return []int{-1}
	}

	var ids []int
	for _, c := range doc.Active.Chunks {
		if until != UnboundedVersion && c.FirstEventVersion > until {
			break
		}
		if c.LastEventVersion != -1 && c.LastEventVersion < start {
			continue
		}
		ids = append(ids, c.ChunkID)
	}
	if len(ids) == 0 {
		ids = []int{doc.Active.Chunks[len(doc.Active.Chunks)-1].ChunkID}
	}
	return ids
}

// StreamPaths returns every blob object key belonging to the document's
// active stream. Used by the tiering provider.
func StreamPaths(doc *eventstore.ObjectDocument) []string {
	if !doc.Active.ChunkingEnabled || len(doc.Active.Chunks) == 0 {
		return []string{BlobPath(doc.Active.StreamID, -1)}
	}
	paths := make([]string, 0, len(doc.Active.Chunks))
	for _, c := range doc.Active.Chunks {
		paths = append(paths, BlobPath(doc.Active.StreamID, c.ChunkID))
	}
	return paths
}
