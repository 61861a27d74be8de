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
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/payload"
	"github.com/dolthub/eventstore/tablestore"
)

// tailScanPageSize bounds the descending probe for the newest primary row.
const tailScanPageSize = 8

// TableDataStore stores one row per event. All rows of a single append share
// a partition key and commit in atomic batches, so a reader never observes a
// partial append.
type TableDataStore struct {
	ts    tablestore.TableStore
	codec payload.Codec
	log   *logrus.Logger
	now   func() time.Time
}

var _ DataStore = &TableDataStore{}

// NewTableDataStore creates a new instance of a TableDataStore
func NewTableDataStore(ts tablestore.TableStore, settings eventstore.Settings, log *logrus.Logger) *TableDataStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TableDataStore{
		ts: ts,
		codec: payload.Codec{
			Threshold:    settings.PayloadChunkThresholdBytes,
			MaxChunkSize: settings.MaxPayloadChunkSizeBytes,
			Compression:  settings.CompressPayloads,
		},
		log: log,
		now: time.Now,
	}
}

// Append writes |events| to the stream's active partition.
func (ds *TableDataStore) Append(ctx context.Context, doc *eventstore.ObjectDocument, preserveTs bool, events []eventstore.Event) error {
	if err := validateAppend(doc, events); err != nil {
		return err
	}
	events = stampTimestamps(events, preserveTs, ds.now)

	chunk := appendChunk(doc)
	pk := PartitionKey(doc.Active.StreamID, chunk)

	tail, err := ds.tailEvent(ctx, pk)
	if err != nil {
		return ds.mapTableErr(err, pk, "")
	}
	if tail != nil && tail.IsClosed() {
		return eventstore.StreamClosedError{StreamID: doc.Active.StreamID}
	}

	var ops []tablestore.BatchOperation
	var payloadBytes int
	for _, e := range events {
		rows, err := rowsForEvent(doc, pk, chunk, e, ds.codec)
		if err != nil {
			return err
		}
		for _, row := range rows {
			ops = append(ops, tablestore.BatchOperation{Op: tablestore.OpInsert, Row: row})
		}
		payloadBytes += len(e.Payload)
	}

	// Atomic within a batch; the substrate caps batches at 100 operations
	// per partition.
	for start := 0; start < len(ops); start += tablestore.MaxBatchSize {
		end := min(start+tablestore.MaxBatchSize, len(ops))
		if err := ds.ts.SubmitBatch(ctx, ops[start:end]); err != nil {
			return ds.mapTableErr(err, pk, RowKey(events[0].EventVersion))
		}
	}

	ds.log.WithFields(logrus.Fields{
		"stream":  doc.Active.StreamID,
		"pk":      pk,
		"events":  len(events),
		"payload": humanize.Bytes(uint64(payloadBytes)),
	}).Debug("appended events to table stream")
	return nil
}

// tailEvent returns the newest primary event row of a partition, or nil when
// the partition is empty.
func (ds *TableDataStore) tailEvent(ctx context.Context, pk string) (*eventstore.Event, error) {
	q := tablestore.Query{
		PartitionKey: pk,
		PageSize:     tailScanPageSize,
		Descending:   true,
	}
	for {
		page, err := ds.ts.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, row := range page.Rows {
			if isContinuationRow(row) {
				continue
			}
			e := eventstore.Event{
				EventVersion: row.Int(colEventVersion),
				EventType:    row.Str(colEventType),
			}
			return &e, nil
		}
		if page.NextToken == "" {
			return nil, nil
		}
		q.Token = page.NextToken
	}
}

// Read returns the committed events with versions in [start, until].
func (ds *TableDataStore) Read(ctx context.Context, doc *eventstore.ObjectDocument, start, until, chunk int) ([]eventstore.Event, bool, error) {
	var out []eventstore.Event
	found := false

	for _, c := range readChunks(doc, start, until, chunk) {
		pk := PartitionKey(doc.Active.StreamID, c)
		q := rangeQuery(pk, start, until)

		rows, err := tablestore.QueryAll(ctx, ds.ts, q)
		if err != nil {
			return nil, false, ds.mapTableErr(err, pk, "")
		}
		if len(rows) > 0 {
			found = true
		}
		for _, row := range rows {
			if isContinuationRow(row) {
				continue
			}
			e, err := eventFromRow(doc.Active.StreamID, row, ds.codec, ds.chunkFetcher(ctx, pk, row.RowKey))
			if err != nil {
				return nil, false, err
			}
			out = append(out, e)
		}
	}
	return out, found, nil
}

// ReadStream yields events page by page using the substrate's native
// pagination.
func (ds *TableDataStore) ReadStream(ctx context.Context, doc *eventstore.ObjectDocument, start, until int) EventIterator {
	return &tableEventIterator{
		ds:     ds,
		doc:    doc,
		start:  start,
		until:  until,
		chunks: readChunks(doc, start, until, ActiveChunk),
	}
}

// RemoveEventsForFailedCommit deletes the primary and continuation rows of
// [from, until] in the active chunk. Absent rows are treated as already
// removed, so re-invocation with the same range is safe.
func (ds *TableDataStore) RemoveEventsForFailedCommit(ctx context.Context, doc *eventstore.ObjectDocument, from, until int) (int, error) {
	pk := PartitionKey(doc.Active.StreamID, appendChunk(doc))

	removed := 0
	for v := from; v <= until; v++ {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		rk := RowKey(v)
		row, err := ds.ts.Get(ctx, pk, rk)
		if tablestore.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return removed, ds.mapTableErr(err, pk, rk)
		}

		if row.Bool(colPayloadChunked) {
			for i := 1; i < row.Int(colPayloadTotalChunks); i++ {
				err := ds.ts.Delete(ctx, pk, ContinuationRowKey(rk, i), "")
				if err != nil && !tablestore.IsNotFoundError(err) {
					return removed, ds.mapTableErr(err, pk, rk)
				}
			}
		}

		err = ds.ts.Delete(ctx, pk, rk, "")
		if err != nil && !tablestore.IsNotFoundError(err) {
			return removed, ds.mapTableErr(err, pk, rk)
		}
		removed++
	}

	if removed > 0 {
		ds.log.WithFields(logrus.Fields{
			"stream":  doc.Active.StreamID,
			"from":    from,
			"until":   until,
			"removed": removed,
		}).Warn("removed events for failed commit")
	}
	return removed, nil
}

func (ds *TableDataStore) chunkFetcher(ctx context.Context, pk, primary string) func(int) ([]byte, error) {
	return func(i int) ([]byte, error) {
		row, err := ds.ts.Get(ctx, pk, ContinuationRowKey(primary, i))
		if tablestore.IsNotFoundError(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return row.Bytes(colPayloadData), nil
	}
}

func (ds *TableDataStore) mapTableErr(err error, pk, rk string) error {
	switch {
	case tablestore.IsTableNotFoundError(err):
		return eventstore.ContainerNotFoundError{Container: ds.ts.Path()}
	case tablestore.IsEntityExistsError(err), tablestore.IsConditionFailedError(err):
		return eventstore.ConcurrencyConflictError{Key: pk + "/" + rk}
	}
	return err
}

// rangeQuery bounds row keys to [start, until] while excluding continuation
// rows beyond the upper bound (their suffixed keys sort after the primary).
func rangeQuery(pk string, start, until int) tablestore.Query {
	q := tablestore.Query{PartitionKey: pk, RowKeyGE: RowKey(start)}
	if until != UnboundedVersion {
		q.RowKeyLE = RowKey(until)
	}
	return q
}

// tableEventIterator walks chunk partitions in order, one result page at a
// time.
type tableEventIterator struct {
	ds     *TableDataStore
	doc    *eventstore.ObjectDocument
	start  int
	until  int
	chunks []int

	buf    []eventstore.Event
	pos    int
	token  string
	paging bool
	closed bool
}

func (it *tableEventIterator) Next(ctx context.Context) (eventstore.Event, bool, error) {
	for {
		if it.closed {
			return eventstore.Event{}, false, nil
		}
		if err := ctx.Err(); err != nil {
			return eventstore.Event{}, false, err
		}
		if it.pos < len(it.buf) {
			e := it.buf[it.pos]
			it.pos++
			return e, true, nil
		}
		if len(it.chunks) == 0 {
			return eventstore.Event{}, false, nil
		}

		pk := PartitionKey(it.doc.Active.StreamID, it.chunks[0])
		q := rangeQuery(pk, it.start, it.until)
		q.PageSize = 100
		q.Token = it.token

		page, err := it.ds.ts.Query(ctx, q)
		if err != nil {
			it.closed = true
			return eventstore.Event{}, false, it.ds.mapTableErr(err, pk, "")
		}

		it.buf = it.buf[:0]
		it.pos = 0
		for _, row := range page.Rows {
			if isContinuationRow(row) {
				continue
			}
			e, err := eventFromRow(it.doc.Active.StreamID, row, it.ds.codec, it.ds.chunkFetcher(ctx, pk, row.RowKey))
			if err != nil {
				it.closed = true
				return eventstore.Event{}, false, err
			}
			it.buf = append(it.buf, e)
		}

		if page.NextToken == "" {
			it.chunks = it.chunks[1:]
			it.token = ""
		} else {
			it.token = page.NextToken
		}
	}
}

func (it *tableEventIterator) Close() error {
	it.closed = true
	it.buf = nil
	return nil
}
