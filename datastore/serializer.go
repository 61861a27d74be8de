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
	"encoding/json"
	"fmt"
	"time"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/payload"
	"github.com/dolthub/eventstore/tablestore"
)

// HashUnset is stored as the document-hash marker when the committing
// document carried no hash yet.
const HashUnset = "*"

// streamRecord is the persisted layout of a blob event container: one JSON
// object per stream or chunk. The layout is bit-level stable.
type streamRecord struct {
	ObjectID               string             `json:"objectId"`
	ObjectName             string             `json:"objectName"`
	LastObjectDocumentHash string             `json:"lastObjectDocumentHash"`
	Events                 []eventstore.Event `json:"events"`
}

func encodeStreamRecord(rec streamRecord) ([]byte, error) {
	return json.Marshal(rec)
}

func decodeStreamRecord(data []byte) (streamRecord, error) {
	var rec streamRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return streamRecord{}, err
	}
	return rec, nil
}

// Table row columns of an event entity.
const (
	colObjectID           = "ObjectId"
	colStreamID           = "StreamIdentifier"
	colEventVersion       = "EventVersion"
	colEventType          = "EventType"
	colSchemaVersion      = "SchemaVersion"
	colChunkID            = "ChunkIdentifier"
	colDocumentHash       = "LastObjectDocumentHash"
	colTimestamp          = "Timestamp"
	colMetadata           = "Metadata"
	colPayload            = "Payload"
	colPayloadData        = "PayloadData"
	colPayloadChunked     = "PayloadChunked"
	colPayloadTotalChunks = "PayloadTotalChunks"
	colPayloadChunkIndex  = "PayloadChunkIndex"
	colPayloadCompressed  = "PayloadCompressed"
)

// payloadSentinel replaces the textual payload of a row whose payload lives
// in the binary chunked representation.
const payloadSentinel = "{}"

// rowsForEvent converts one event into its primary row plus any continuation
// rows for a large payload.
func rowsForEvent(doc *eventstore.ObjectDocument, pk string, chunk int, e eventstore.Event, codec payload.Codec) ([]tablestore.Row, error) {
	primaryKey := RowKey(e.EventVersion)

	cols := map[string]any{
		colObjectID:      doc.ObjectID,
		colStreamID:      doc.Active.StreamID,
		colEventVersion:  e.EventVersion,
		colEventType:     e.EventType,
		colSchemaVersion: e.SchemaVersion,
		colDocumentHash:  documentHashMarker(doc),
		colTimestamp:     e.Timestamp,
		colPayload:       string(e.Payload),
	}
	if chunk >= 0 {
		cols[colChunkID] = chunk
	}
	if len(e.Metadata) > 0 {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, err
		}
		cols[colMetadata] = string(meta)
	}

	if !codec.Exceeds(len(e.Payload)) {
		return []tablestore.Row{{PartitionKey: pk, RowKey: primaryKey, Columns: cols}}, nil
	}

	enc, err := codec.Encode(e.Payload)
	if err != nil {
		return nil, err
	}

	cols[colPayload] = payloadSentinel
	cols[colPayloadData] = enc.Chunks[0]
	cols[colPayloadChunked] = enc.TotalChunks() > 1
	cols[colPayloadTotalChunks] = enc.TotalChunks()
	cols[colPayloadChunkIndex] = 0
	cols[colPayloadCompressed] = enc.Compressed

	rows := []tablestore.Row{{PartitionKey: pk, RowKey: primaryKey, Columns: cols}}
	for i := 1; i < enc.TotalChunks(); i++ {
		rows = append(rows, tablestore.Row{
			PartitionKey: pk,
			RowKey:       ContinuationRowKey(primaryKey, i),
			Columns: map[string]any{
				colObjectID:           doc.ObjectID,
				colStreamID:           doc.Active.StreamID,
				colEventVersion:       e.EventVersion,
				colPayloadData:        enc.Chunks[i],
				colPayloadChunkIndex:  i,
				colPayloadTotalChunks: enc.TotalChunks(),
			},
		})
	}
	return rows, nil
}

// isContinuationRow reports whether a row holds a continuation chunk of a
// large payload. Continuation rows are invisible to range reads.
func isContinuationRow(row tablestore.Row) bool {
	return row.Int(colPayloadChunkIndex) > 0
}

// eventFromRow rebuilds an event from its primary row. |fetchChunk| loads
// continuation chunk |i| and returns nil when the row is missing.
func eventFromRow(streamID string, row tablestore.Row, codec payload.Codec, fetchChunk func(index int) ([]byte, error)) (eventstore.Event, error) {
	e := eventstore.Event{
		EventVersion:  row.Int(colEventVersion),
		EventType:     row.Str(colEventType),
		SchemaVersion: row.Str(colSchemaVersion),
		Timestamp:     row.Time(colTimestamp).UTC(),
	}
	if meta := row.Str(colMetadata); meta != "" {
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return eventstore.Event{}, err
		}
	}

	if !row.Has(colPayloadData) {
		e.Payload = json.RawMessage(row.Str(colPayload))
		return e, nil
	}

	total := row.Int(colPayloadTotalChunks)
	if total < 1 {
		total = 1
	}
	chunks := make([][]byte, total)
	chunks[0] = row.Bytes(colPayloadData)
	for i := 1; i < total; i++ {
		chunk, err := fetchChunk(i)
		if err != nil {
			return eventstore.Event{}, err
		}
		if chunk == nil {
			return eventstore.Event{}, eventstore.CorruptPayloadError{
				StreamID:     streamID,
				EventVersion: e.EventVersion,
				Reason:       fmt.Sprintf("missing continuation chunk %d of %d", i, total),
			}
		}
		chunks[i] = chunk
	}

	data, err := codec.Decode(chunks, row.Bool(colPayloadCompressed))
	if err != nil {
		return eventstore.Event{}, eventstore.CorruptPayloadError{
			StreamID:     streamID,
			EventVersion: e.EventVersion,
			Reason:       err.Error(),
		}
	}
	e.Payload = data
	return e, nil
}

func documentHashMarker(doc *eventstore.ObjectDocument) string {
	if doc.Hash == "" {
		return HashUnset
	}
	return doc.Hash
}

// stampTimestamps sets every event's timestamp to now unless the caller
// asked to preserve them (migrations replaying history).
func stampTimestamps(events []eventstore.Event, preserveTs bool, now func() time.Time) []eventstore.Event {
	stamped := make([]eventstore.Event, len(events))
	copy(stamped, events)
	if preserveTs {
		return stamped
	}
	ts := now().UTC()
	for i := range stamped {
		stamped[i].Timestamp = ts
	}
	return stamped
}
