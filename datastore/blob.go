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
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/blobstore"
)

// BlobDataStore stores each stream (or chunk) as a single JSON object whose
// rewrite is guarded by the blob's ETag. A whole append is one conditional
// write, so partial visibility is impossible.
type BlobDataStore struct {
	bs  blobstore.Blobstore
	log *logrus.Logger
	now func() time.Time
}

var _ DataStore = &BlobDataStore{}

// NewBlobDataStore creates a new instance of a BlobDataStore
func NewBlobDataStore(bs blobstore.Blobstore, log *logrus.Logger) *BlobDataStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BlobDataStore{bs: bs, log: log, now: time.Now}
}

// Append writes |events| to the stream's active object.
func (ds *BlobDataStore) Append(ctx context.Context, doc *eventstore.ObjectDocument, preserveTs bool, events []eventstore.Event) error {
	if err := validateAppend(doc, events); err != nil {
		return err
	}
	events = stampTimestamps(events, preserveTs, ds.now)

	path := BlobPath(doc.Active.StreamID, appendChunk(doc))

	_, err := ds.bs.GetProperties(ctx, path)
	switch {
	case blobstore.IsNotFoundError(err):
		return ds.bootstrap(ctx, doc, path, events)
	case blobstore.IsContainerNotFoundError(err):
		return eventstore.ContainerNotFoundError{Container: ds.bs.Path()}
	case err != nil:
		return err
	}

	data, etag, err := ds.bs.Get(ctx, path, blobstore.None)
	if err != nil {
		if blobstore.IsNotFoundError(err) {
			// Deleted between the property probe and the read; treat as a
			// fresh stream.
			return ds.bootstrap(ctx, doc, path, events)
		}
		return ds.mapBlobErr(err, doc)
	}

	rec, err := decodeStreamRecord(data)
	if err != nil {
		return err
	}
	if n := len(rec.Events); n > 0 && rec.Events[n-1].IsClosed() {
		return eventstore.StreamClosedError{StreamID: doc.Active.StreamID}
	}
	if rec.LastObjectDocumentHash != HashUnset && rec.LastObjectDocumentHash != doc.PrevHash {
		return eventstore.ConcurrencyConflictError{
			Key:             path,
			ExpectedVersion: doc.PrevHash,
			ActualVersion:   rec.LastObjectDocumentHash,
		}
	}

	rec.Events = append(rec.Events, events...)
	rec.LastObjectDocumentHash = documentHashMarker(doc)

	updated, err := encodeStreamRecord(rec)
	if err != nil {
		return err
	}
	if _, err := ds.bs.Put(ctx, path, updated, blobstore.MatchVersion(etag)); err != nil {
		return ds.mapBlobErr(err, doc)
	}

	ds.log.WithFields(logrus.Fields{
		"stream": doc.Active.StreamID,
		"path":   path,
		"events": len(events),
	}).Debug("appended events to blob stream")
	return nil
}

// bootstrap creates the stream object for its first append. If-None-Match
// turns a create race into a concurrency conflict for the loser.
func (ds *BlobDataStore) bootstrap(ctx context.Context, doc *eventstore.ObjectDocument, path string, events []eventstore.Event) error {
	rec := streamRecord{
		ObjectID:               doc.ObjectID,
		ObjectName:             doc.ObjectName,
		LastObjectDocumentHash: documentHashMarker(doc),
		Events:                 events,
	}
	data, err := encodeStreamRecord(rec)
	if err != nil {
		return err
	}
	if _, err := ds.bs.Put(ctx, path, data, blobstore.CreateOnly()); err != nil {
		return ds.mapBlobErr(err, doc)
	}
	return nil
}

// Read returns the committed events with versions in [start, until].
func (ds *BlobDataStore) Read(ctx context.Context, doc *eventstore.ObjectDocument, start, until, chunk int) ([]eventstore.Event, bool, error) {
	var out []eventstore.Event
	found := false

	for _, c := range readChunks(doc, start, until, chunk) {
		path := BlobPath(doc.Active.StreamID, c)
		data, _, err := ds.bs.Get(ctx, path, blobstore.None)
		if blobstore.IsNotFoundError(err) {
			continue
		}
		if blobstore.IsContainerNotFoundError(err) {
			return nil, false, eventstore.ContainerNotFoundError{Container: ds.bs.Path()}
		}
		if err != nil {
			return nil, false, err
		}

		rec, err := decodeStreamRecord(data)
		if err != nil {
			return nil, false, err
		}
		found = true
		for _, e := range rec.Events {
			if e.EventVersion < start {
				continue
			}
			if until != UnboundedVersion && e.EventVersion > until {
				continue
			}
			out = append(out, e)
		}
	}
	return out, found, nil
}

// ReadStream buffers the stream's objects once, then yields per event.
func (ds *BlobDataStore) ReadStream(ctx context.Context, doc *eventstore.ObjectDocument, start, until int) EventIterator {
	return &blobEventIterator{ds: ds, doc: doc, start: start, until: until}
}

// RemoveEventsForFailedCommit rewrites the active chunk without [from,
// until]. A missing object means nothing was committed.
func (ds *BlobDataStore) RemoveEventsForFailedCommit(ctx context.Context, doc *eventstore.ObjectDocument, from, until int) (int, error) {
	path := BlobPath(doc.Active.StreamID, appendChunk(doc))

	data, etag, err := ds.bs.Get(ctx, path, blobstore.None)
	if blobstore.IsNotFoundError(err) {
		return 0, nil
	}
	if blobstore.IsContainerNotFoundError(err) {
		return 0, eventstore.ContainerNotFoundError{Container: ds.bs.Path()}
	}
	if err != nil {
		return 0, err
	}

	rec, err := decodeStreamRecord(data)
	if err != nil {
		return 0, err
	}

	kept := rec.Events[:0]
	removed := 0
	for _, e := range rec.Events {
		if e.EventVersion >= from && e.EventVersion <= until {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0, nil
	}
	rec.Events = kept

	updated, err := encodeStreamRecord(rec)
	if err != nil {
		return 0, err
	}
	if _, err := ds.bs.Put(ctx, path, updated, blobstore.MatchVersion(etag)); err != nil {
		return 0, ds.mapBlobErr(err, doc)
	}

	ds.log.WithFields(logrus.Fields{
		"stream":  doc.Active.StreamID,
		"from":    from,
		"until":   until,
		"removed": removed,
	}).Warn("removed events for failed commit")
	return removed, nil
}

func (ds *BlobDataStore) mapBlobErr(err error, doc *eventstore.ObjectDocument) error {
	var cpe blobstore.CheckAndPutError
	switch {
	case blobstore.IsContainerNotFoundError(err):
		return eventstore.ContainerNotFoundError{Container: ds.bs.Path()}
	case errors.As(err, &cpe):
		return eventstore.ConcurrencyConflictError{
			Key:             cpe.Key,
			ExpectedVersion: cpe.ExpectedVersion,
			ActualVersion:   cpe.ActualVersion,
		}
	}
	return err
}

// blobEventIterator buffers the matching events on the first call to Next;
// there is no server-side pagination for a single object fetch.
type blobEventIterator struct {
	ds     *BlobDataStore
	doc    *eventstore.ObjectDocument
	start  int
	until  int
	events []eventstore.Event
	pos    int
	loaded bool
	closed bool
}

func (it *blobEventIterator) Next(ctx context.Context) (eventstore.Event, bool, error) {
	if it.closed {
		return eventstore.Event{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return eventstore.Event{}, false, err
	}
	if !it.loaded {
		events, _, err := it.ds.Read(ctx, it.doc, it.start, it.until, ActiveChunk)
		if err != nil {
			it.closed = true
			return eventstore.Event{}, false, err
		}
		it.events = events
		it.loaded = true
	}
	if it.pos >= len(it.events) {
		return eventstore.Event{}, false, nil
	}
	e := it.events[it.pos]
	it.pos++
	return e, true, nil
}

func (it *blobEventIterator) Close() error {
	it.closed = true
	it.events = nil
	return nil
}
