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
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/blobstore"
)

// getByTagParallelism bounds the concurrent document loads of a tag query.
const getByTagParallelism = 8

// BlobDocumentStore persists object documents as one JSON blob per object at
// {objectName_lc}/{objectId}.json, with the blob's ETag carrying the CAS
// version.
type BlobDocumentStore struct {
	bs       blobstore.Blobstore
	tags     DocumentTagStore
	settings eventstore.Settings
	log      *logrus.Logger
}

var _ DocumentStore = &BlobDocumentStore{}

// NewBlobDocumentStore creates a new instance of a BlobDocumentStore
func NewBlobDocumentStore(bs blobstore.Blobstore, tags DocumentTagStore, settings eventstore.Settings, log *logrus.Logger) *BlobDocumentStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BlobDocumentStore{bs: bs, tags: tags, settings: settings, log: log}
}

// Create returns the document for |objectID|, writing a freshly initialized
// one when absent.
func (s *BlobDocumentStore) Create(ctx context.Context, objectName, objectID string) (*eventstore.ObjectDocument, error) {
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

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	path := documentPath(objectName, objectID)
	etag, err := s.bs.Put(ctx, path, data, blobstore.CreateOnly())
	if err != nil {
		if blobstore.IsCheckAndPutError(err) {
			// Another writer initialized it first; theirs wins.
			return s.Get(ctx, objectName, objectID)
		}
		return nil, s.mapErr(err, objectName, objectID)
	}

	doc.DocumentPath = path
	doc.ETag = etag
	s.log.WithFields(logrus.Fields{"object": objectName, "id": objectID}).Debug("created object document")
	return doc, nil
}

// Get returns the document for |objectID|, or DocumentNotFoundError.
func (s *BlobDocumentStore) Get(ctx context.Context, objectName, objectID string) (*eventstore.ObjectDocument, error) {
	path := documentPath(objectName, objectID)

	data, etag, err := s.bs.Get(ctx, path, blobstore.None)
	if err != nil {
		return nil, s.mapErr(err, objectName, objectID)
	}

	var doc eventstore.ObjectDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	doc.DocumentPath = path
	doc.ETag = etag
	return &doc, nil
}

// Set persists |doc|, advancing the hash chain and refusing lost updates via
// the blob's ETag.
func (s *BlobDocumentStore) Set(ctx context.Context, doc *eventstore.ObjectDocument) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if err := advanceHashChain(doc); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	pre := blobstore.CreateOnly()
	if doc.ETag != "" {
		pre = blobstore.MatchVersion(doc.ETag)
	}

	path := documentPath(doc.ObjectName, doc.ObjectID)
	etag, err := s.bs.Put(ctx, path, data, pre)
	if err != nil {
		return s.mapErr(err, doc.ObjectName, doc.ObjectID)
	}

	doc.DocumentPath = path
	doc.ETag = etag
	return nil
}

// GetByTag loads every document whose id is indexed under |tag|.
func (s *BlobDocumentStore) GetByTag(ctx context.Context, objectName, tag string) ([]*eventstore.ObjectDocument, error) {
	ids, err := s.tags.GetObjectIDs(ctx, objectName, tag)
	if err != nil {
		return nil, err
	}

	docs := make([]*eventstore.ObjectDocument, len(ids))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(getByTagParallelism)
	for i, id := range ids {
		eg.Go(func() error {
			doc, err := s.Get(egCtx, objectName, id)
			if eventstore.IsDocumentNotFound(err) {
				// Tag entries may outlive their documents.
				return nil
			}
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := docs[:0]
	for _, doc := range docs {
		if doc != nil {
			out = append(out, doc)
		}
	}
	return out, nil
}

// GetFirstByTag returns the first document indexed under |tag|.
func (s *BlobDocumentStore) GetFirstByTag(ctx context.Context, objectName, tag string) (*eventstore.ObjectDocument, error) {
	docs, err := s.GetByTag(ctx, objectName, tag)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, eventstore.DocumentNotFoundError{ObjectName: objectName, ObjectID: "tag:" + tag}
	}
	return docs[0], nil
}

func (s *BlobDocumentStore) mapErr(err error, objectName, objectID string) error {
	var cpe blobstore.CheckAndPutError
	switch {
	case blobstore.IsNotFoundError(err):
		return eventstore.DocumentNotFoundError{ObjectName: objectName, ObjectID: objectID}
	case blobstore.IsContainerNotFoundError(err):
		return eventstore.ContainerNotFoundError{Container: s.bs.Path()}
	case errors.As(err, &cpe):
		return eventstore.ConcurrencyConflictError{
			Key:             cpe.Key,
			ExpectedVersion: cpe.ExpectedVersion,
			ActualVersion:   cpe.ActualVersion,
		}
	}
	return err
}
