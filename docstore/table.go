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

package docstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/tablestore"
)

// Main-row columns of an object document. The active stream is flattened;
// chunks and terminated streams live in companion tables keyed by object id.
const (
	colDocObjectID         = "ObjectId"
	colDocObjectName       = "ObjectName"
	colDocStreamID         = "ActiveStreamIdentifier"
	colDocStreamVersion    = "ActiveStreamVersion"
	colDocChunkingEnabled  = "ActiveChunkingEnabled"
	colDocChunkSize        = "ActiveChunkSize"
	colDocDataStore        = "ActiveDataStore"
	colDocDocumentStore    = "ActiveDocumentStore"
	colDocDocumentTagStore = "ActiveDocumentTagStore"
	colDocStreamTagStore   = "ActiveStreamTagStore"
	colDocSnapshotStore    = "ActiveSnapShotStore"
	colDocConnectionName   = "ActiveConnectionName"
	colDocStreamType       = "ActiveStreamType"
	colDocSchemaVersion    = "SchemaVersion"
	colDocHash             = "Hash"
	colDocPrevHash         = "PrevHash"

	colChunkFirstVersion = "FirstEventVersion"
	colChunkLastVersion  = "LastEventVersion"

	colTermReason       = "Reason"
	colTermContinuation = "ContinuationStreamIdentifier"
	colTermTerminatedAt = "TerminationDate"
	colTermVersion      = "Version"
	colTermDeleted      = "Deleted"
	colTermDeletedAt    = "DeletionDate"
)

// TableDocumentStore persists object documents across a main table and two
// companion tables (stream chunks, terminated streams). The main row's
// version tag carries the CAS version; companion rows are upserted in
// per-partition batches before the main row commits.
type TableDocumentStore struct {
	docs       tablestore.TableStore
	chunks     tablestore.TableStore
	terminated tablestore.TableStore
	tags       DocumentTagStore
	settings   eventstore.Settings
	log        *logrus.Logger
}

var _ DocumentStore = &TableDocumentStore{}

// NewTableDocumentStore creates a new instance of a TableDocumentStore
func NewTableDocumentStore(docs, chunks, terminated tablestore.TableStore, tags DocumentTagStore, settings eventstore.Settings, log *logrus.Logger) *TableDocumentStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TableDocumentStore{
		docs:       docs,
		chunks:     chunks,
		terminated: terminated,
		tags:       tags,
		settings:   settings,
		log:        log,
	}
}

// Create returns the document for |objectID|, writing a freshly initialized
// one when absent.
func (s *TableDocumentStore) Create(ctx context.Context, objectName, objectID string) (*eventstore.ObjectDocument, error) {
	doc, err := s.Get(ctx, objectName, objectID)
	if err == nil {
		return doc, nil
	}
	if !eventstore.IsDocumentNotFound(err) {
		return nil, err
	}

	doc = eventstore.NewObjectDocument(objectName, objectID, s.settings)
	hash, err := eventstore.HashDocument(doc)
	if err != nil {
		return nil, err
	}
	doc.Hash = hash

	if err := s.writeCompanions(ctx, doc); err != nil {
		return nil, err
	}

	etag, err := s.docs.Insert(ctx, mainRow(doc))
	if err != nil {
		if tablestore.IsEntityExistsError(err) {
			return s.Get(ctx, objectName, objectID)
		}
		return nil, s.mapErr(err, objectName, objectID)
	}

	doc.ETag = etag
	s.log.WithFields(logrus.Fields{"object": objectName, "id": objectID}).Debug("created object document")
	return doc, nil
}

// Get returns the document for |objectID|, or DocumentNotFoundError.
func (s *TableDocumentStore) Get(ctx context.Context, objectName, objectID string) (*eventstore.ObjectDocument, error) {
	row, err := s.docs.Get(ctx, strings.ToLower(objectName), objectID)
	if err != nil {
		return nil, s.mapErr(err, objectName, objectID)
	}

	doc := documentFromRow(row)

	chunkRows, err := tablestore.QueryAll(ctx, s.chunks, tablestore.Query{PartitionKey: objectID})
	if err != nil && !tablestore.IsTableNotFoundError(err) {
		return nil, err
	}
	for _, cr := range chunkRows {
		id, err := strconv.Atoi(cr.RowKey)
		if err != nil {
			continue
		}
		doc.Active.Chunks = append(doc.Active.Chunks, eventstore.StreamChunk{
			ChunkID:           id,
			FirstEventVersion: cr.Int(colChunkFirstVersion),
			LastEventVersion:  cr.Int(colChunkLastVersion),
		})
	}

	termRows, err := tablestore.QueryAll(ctx, s.terminated, tablestore.Query{PartitionKey: objectID})
	if err != nil && !tablestore.IsTableNotFoundError(err) {
		return nil, err
	}
	for _, tr := range termRows {
		term := eventstore.TerminatedStream{
			StreamID:             tr.RowKey,
			Reason:               tr.Str(colTermReason),
			ContinuationStreamID: tr.Str(colTermContinuation),
			TerminatedAt:         tr.Time(colTermTerminatedAt),
			Version:              tr.Int(colTermVersion),
			Deleted:              tr.Bool(colTermDeleted),
		}
		if tr.Has(colTermDeletedAt) {
			at := tr.Time(colTermDeletedAt)
			term.DeletedAt = &at
		}
		doc.TerminatedStreams = append(doc.TerminatedStreams, term)
	}

	return doc, nil
}

// Set persists |doc|, advancing the hash chain. The companion rows commit
// first; the CAS on the main row decides the winner.
func (s *TableDocumentStore) Set(ctx context.Context, doc *eventstore.ObjectDocument) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if err := advanceHashChain(doc); err != nil {
		return err
	}

	if err := s.writeCompanions(ctx, doc); err != nil {
		return err
	}

	var etag string
	var err error
	if doc.ETag == "" {
		etag, err = s.docs.Insert(ctx, mainRow(doc))
	} else {
		etag, err = s.docs.Update(ctx, mainRow(doc), doc.ETag)
	}
	if err != nil {
		return s.mapErr(err, doc.ObjectName, doc.ObjectID)
	}

	doc.ETag = etag
	return nil
}

// GetByTag loads every document whose id is indexed under |tag|.
func (s *TableDocumentStore) GetByTag(ctx context.Context, objectName, tag string) ([]*eventstore.ObjectDocument, error) {
	ids, err := s.tags.GetObjectIDs(ctx, objectName, tag)
	if err != nil {
		return nil, err
	}

	var docs []*eventstore.ObjectDocument
	for _, id := range ids {
		doc, err := s.Get(ctx, objectName, id)
		if eventstore.IsDocumentNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// GetFirstByTag returns the first document indexed under |tag|.
func (s *TableDocumentStore) GetFirstByTag(ctx context.Context, objectName, tag string) (*eventstore.ObjectDocument, error) {
	docs, err := s.GetByTag(ctx, objectName, tag)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, eventstore.DocumentNotFoundError{ObjectName: objectName, ObjectID: "tag:" + tag}
	}
	return docs[0], nil
}

func (s *TableDocumentStore) writeCompanions(ctx context.Context, doc *eventstore.ObjectDocument) error {
	if len(doc.Active.Chunks) > 0 {
		var ops []tablestore.BatchOperation
		for _, c := range doc.Active.Chunks {
			ops = append(ops, tablestore.BatchOperation{Op: tablestore.OpUpsert, Row: tablestore.Row{
				PartitionKey: doc.ObjectID,
				RowKey:       fmt.Sprintf("%010d", c.ChunkID),
				Columns: map[string]any{
					colChunkFirstVersion: c.FirstEventVersion,
					colChunkLastVersion:  c.LastEventVersion,
				},
			}})
		}
		if err := s.chunks.SubmitBatch(ctx, ops); err != nil {
			return s.mapErr(err, doc.ObjectName, doc.ObjectID)
		}
	}

	if len(doc.TerminatedStreams) > 0 {
		var ops []tablestore.BatchOperation
		for _, t := range doc.TerminatedStreams {
			cols := map[string]any{
				colTermReason:       t.Reason,
				colTermContinuation: t.ContinuationStreamID,
				colTermTerminatedAt: t.TerminatedAt,
				colTermVersion:      t.Version,
				colTermDeleted:      t.Deleted,
			}
			if t.DeletedAt != nil {
				cols[colTermDeletedAt] = *t.DeletedAt
			}
			ops = append(ops, tablestore.BatchOperation{Op: tablestore.OpUpsert, Row: tablestore.Row{
				PartitionKey: doc.ObjectID,
				RowKey:       t.StreamID,
				Columns:      cols,
			}})
		}
		if err := s.terminated.SubmitBatch(ctx, ops); err != nil {
			return s.mapErr(err, doc.ObjectName, doc.ObjectID)
		}
	}
	return nil
}

func (s *TableDocumentStore) mapErr(err error, objectName, objectID string) error {
	switch {
	case tablestore.IsNotFoundError(err):
		return eventstore.DocumentNotFoundError{ObjectName: objectName, ObjectID: objectID}
	case tablestore.IsTableNotFoundError(err):
		return eventstore.ContainerNotFoundError{Container: s.docs.Path()}
	case tablestore.IsConditionFailedError(err), tablestore.IsEntityExistsError(err):
		return eventstore.ConcurrencyConflictError{Key: strings.ToLower(objectName) + "/" + objectID}
	}
	return err
}

func mainRow(doc *eventstore.ObjectDocument) tablestore.Row {
	cols := map[string]any{
		colDocObjectID:         doc.ObjectID,
		colDocObjectName:       doc.ObjectName,
		colDocStreamID:         doc.Active.StreamID,
		colDocStreamVersion:    doc.Active.CurrentVersion,
		colDocChunkingEnabled:  doc.Active.ChunkingEnabled,
		colDocChunkSize:        doc.Active.ChunkSize,
		colDocDataStore:        doc.Active.DataStore,
		colDocDocumentStore:    doc.Active.DocumentStore,
		colDocDocumentTagStore: doc.Active.DocumentTagStore,
		colDocStreamTagStore:   doc.Active.StreamTagStore,
		colDocSnapshotStore:    doc.Active.SnapShotStore,
		colDocStreamType:       doc.Active.StreamType,
		colDocSchemaVersion:    doc.SchemaVersion,
		colDocHash:             doc.Hash,
		colDocPrevHash:         doc.PrevHash,
	}
	return tablestore.Row{
		PartitionKey: strings.ToLower(doc.ObjectName),
		RowKey:       doc.ObjectID,
		Columns:      cols,
	}
}

func documentFromRow(row tablestore.Row) *eventstore.ObjectDocument {
	doc := &eventstore.ObjectDocument{
		ObjectID:   row.Str(colDocObjectID),
		ObjectName: row.Str(colDocObjectName),
		Active: eventstore.StreamInformation{
			StreamID:         row.Str(colDocStreamID),
			CurrentVersion:   row.Int(colDocStreamVersion),
			ChunkingEnabled:  row.Bool(colDocChunkingEnabled),
			ChunkSize:        row.Int(colDocChunkSize),
			DataStore:        row.Str(colDocDataStore),
			DocumentStore:    row.Str(colDocDocumentStore),
			DocumentTagStore: row.Str(colDocDocumentTagStore),
			StreamTagStore:   row.Str(colDocStreamTagStore),
			SnapShotStore:    row.Str(colDocSnapshotStore),
			// Legacy routing is input only; it is read when present but
			// never written back.
			ConnectionName: row.Str(colDocConnectionName),
			StreamType:     row.Str(colDocStreamType),
		},
		SchemaVersion: row.Str(colDocSchemaVersion),
		Hash:          row.Str(colDocHash),
		PrevHash:      row.Str(colDocPrevHash),
		ETag:          row.ETag,
	}
	return doc
}
