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
	"slices"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/eventstore/blobstore"
)

// tagCASRetries bounds the reload-and-retry loop when concurrent writers
// race on the same tag record.
const tagCASRetries = 5

// documentTagRecord is the persisted shape of a tag → object ids index entry.
type documentTagRecord struct {
	Tag           string   `json:"tag"`
	ObjectIDs     []string `json:"objectIds"`
	SchemaVersion string   `json:"schemaVersion"`
}

// streamTagRecord is the persisted shape of a tag → stream ids index entry.
type streamTagRecord struct {
	Tag           string   `json:"tag"`
	StreamIDs     []string `json:"streamIdentifiers"`
	SchemaVersion string   `json:"schemaVersion"`
}

// BlobDocumentTagStore keeps one JSON blob per (objectName, tag) holding the
// full id list. Membership changes are read-modify-write under the blob's
// ETag, retried briefly when writers collide.
type BlobDocumentTagStore struct {
	bs  blobstore.Blobstore
	log *logrus.Logger
}

var _ DocumentTagStore = &BlobDocumentTagStore{}

// NewBlobDocumentTagStore creates a new instance of a BlobDocumentTagStore
func NewBlobDocumentTagStore(bs blobstore.Blobstore, log *logrus.Logger) *BlobDocumentTagStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BlobDocumentTagStore{bs: bs, log: log}
}

// documentTagPath addresses a tag record. Tag records are keyed by tag alone;
// an id list may span object types when callers reuse tag values, and dead
// entries are skipped at load time.
func documentTagPath(tag string) string {
	return "tags/document/" + sanitizeBlobTag(tag) + ".json"
}

// SetTag adds |objectID| to the tag's id list. Idempotent.
func (s *BlobDocumentTagStore) SetTag(ctx context.Context, objectName, tag, objectID string) error {
	return s.mutate(ctx, tag, func(rec *documentTagRecord) bool {
		if slices.Contains(rec.ObjectIDs, objectID) {
			return false
		}
		rec.ObjectIDs = append(rec.ObjectIDs, objectID)
		return true
	})
}

// RemoveTag removes |objectID| from the tag's id list. Absent entries are a
// no-op.
func (s *BlobDocumentTagStore) RemoveTag(ctx context.Context, objectName, tag, objectID string) error {
	return s.mutate(ctx, tag, func(rec *documentTagRecord) bool {
		i := slices.Index(rec.ObjectIDs, objectID)
		if i < 0 {
			return false
		}
		rec.ObjectIDs = slices.Delete(rec.ObjectIDs, i, i+1)
		return true
	})
}

// GetObjectIDs returns every id indexed under |tag|.
func (s *BlobDocumentTagStore) GetObjectIDs(ctx context.Context, objectName, tag string) ([]string, error) {
	data, _, err := s.bs.Get(ctx, documentTagPath(tag), blobstore.None)
	if blobstore.IsNotFoundError(err) || blobstore.IsContainerNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec documentTagRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec.ObjectIDs, nil
}

// mutate applies |fn| to the tag record under a CAS loop. A false return from
// |fn| means the record already holds the desired state.
func (s *BlobDocumentTagStore) mutate(ctx context.Context, tag string, fn func(*documentTagRecord) bool) error {
	path := documentTagPath(tag)

	attempt := func() error {
		data, etag, err := s.bs.Get(ctx, path, blobstore.None)
		rec := documentTagRecord{Tag: tag, SchemaVersion: TagSchemaVersion}
		pre := blobstore.CreateOnly()
		switch {
		case blobstore.IsNotFoundError(err):
			// First writer creates the record.
		case err != nil:
			return backoff.Permanent(err)
		default:
			if err := json.Unmarshal(data, &rec); err != nil {
				return backoff.Permanent(err)
			}
			pre = blobstore.MatchVersion(etag)
		}

		if !fn(&rec) {
			return nil
		}

		updated, err := json.Marshal(rec)
		if err != nil {
			return backoff.Permanent(err)
		}
		if _, err := s.bs.Put(ctx, path, updated, pre); err != nil {
			if blobstore.IsCheckAndPutError(err) {
				// Lost the race; reload and retry.
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), tagCASRetries), ctx)
	if err := backoff.Retry(attempt, bo); err != nil {
		s.log.WithFields(logrus.Fields{"tag": tag, "path": path}).WithError(err).Warn("tag update failed")
		return err
	}
	return nil
}

// BlobStreamTagStore keeps one JSON blob per tag holding the stream id list.
type BlobStreamTagStore struct {
	bs  blobstore.Blobstore
	log *logrus.Logger
}

var _ StreamTagStore = &BlobStreamTagStore{}

// NewBlobStreamTagStore creates a new instance of a BlobStreamTagStore
func NewBlobStreamTagStore(bs blobstore.Blobstore, log *logrus.Logger) *BlobStreamTagStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BlobStreamTagStore{bs: bs, log: log}
}

func streamTagPath(tag string) string {
	return "tags/stream/" + sanitizeBlobTag(tag) + ".json"
}

// SetTag adds |streamID| to the tag's stream list. Idempotent.
func (s *BlobStreamTagStore) SetTag(ctx context.Context, tag, streamID string) error {
	path := streamTagPath(tag)

	attempt := func() error {
		data, etag, err := s.bs.Get(ctx, path, blobstore.None)
		rec := streamTagRecord{Tag: tag, SchemaVersion: TagSchemaVersion}
		pre := blobstore.CreateOnly()
		switch {
		case blobstore.IsNotFoundError(err):
		case err != nil:
			return backoff.Permanent(err)
		default:
			if err := json.Unmarshal(data, &rec); err != nil {
				return backoff.Permanent(err)
			}
			pre = blobstore.MatchVersion(etag)
		}

		if slices.Contains(rec.StreamIDs, streamID) {
			return nil
		}
		rec.StreamIDs = append(rec.StreamIDs, streamID)

		updated, err := json.Marshal(rec)
		if err != nil {
			return backoff.Permanent(err)
		}
		if _, err := s.bs.Put(ctx, path, updated, pre); err != nil {
			if blobstore.IsCheckAndPutError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), tagCASRetries), ctx)
	return backoff.Retry(attempt, bo)
}

// GetStreamIDs returns every stream id indexed under |tag|.
func (s *BlobStreamTagStore) GetStreamIDs(ctx context.Context, tag string) ([]string, error) {
	data, _, err := s.bs.Get(ctx, streamTagPath(tag), blobstore.None)
	if blobstore.IsNotFoundError(err) || blobstore.IsContainerNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec streamTagRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec.StreamIDs, nil
}
