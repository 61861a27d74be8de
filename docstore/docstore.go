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

// Package docstore persists object documents — the per-aggregate control
// plane — with a SHA-256 hash chain and substrate preconditions guarding
// against lost updates, plus the tag indexes and the object-id pager that
// enumerate them.
package docstore

import (
	"context"
	"strings"

	"github.com/dolthub/eventstore"
)

// TagSchemaVersion is written into every persisted tag record.
const TagSchemaVersion = "1.0.0"

// DocumentStore materializes and persists object documents.
type DocumentStore interface {
	// Create returns the document for |objectID|, writing a freshly
	// initialized one when absent. Idempotent.
	Create(ctx context.Context, objectName, objectID string) (*eventstore.ObjectDocument, error)

	// Get returns the document for |objectID|, or DocumentNotFoundError.
	Get(ctx context.Context, objectName, objectID string) (*eventstore.ObjectDocument, error)

	// Set persists |doc|, advancing its hash chain. A substrate version
	// mismatch surfaces as ConcurrencyConflictError; the caller reloads and
	// retries.
	Set(ctx context.Context, doc *eventstore.ObjectDocument) error

	// GetByTag loads every document whose id is indexed under |tag|.
	GetByTag(ctx context.Context, objectName, tag string) ([]*eventstore.ObjectDocument, error)

	// GetFirstByTag returns the first document indexed under |tag|, or
	// DocumentNotFoundError when the tag is empty.
	GetFirstByTag(ctx context.Context, objectName, tag string) (*eventstore.ObjectDocument, error)
}

// DocumentTagStore is the tag → object ids secondary index.
type DocumentTagStore interface {
	SetTag(ctx context.Context, objectName, tag, objectID string) error
	RemoveTag(ctx context.Context, objectName, tag, objectID string) error
	GetObjectIDs(ctx context.Context, objectName, tag string) ([]string, error)
}

// StreamTagStore is the tag → stream ids secondary index.
type StreamTagStore interface {
	SetTag(ctx context.Context, tag, streamID string) error
	GetStreamIDs(ctx context.Context, tag string) ([]string, error)
}

// ObjectIDPage is one page of object ids for a type.
type ObjectIDPage struct {
	Items     []string
	PageSize  int
	NextToken string
}

// ObjectIDPager enumerates the object ids of a type.
type ObjectIDPager interface {
	// GetObjectIDs returns one page of ids, resuming from |token|.
	GetObjectIDs(ctx context.Context, objectName, token string, pageSize int) (ObjectIDPage, error)

	// Count drains every page. Expensive; returns 0 when the backing
	// container or table is missing.
	Count(ctx context.Context, objectName string) (int, error)

	// Exists performs a single point lookup.
	Exists(ctx context.Context, objectName, objectID string) (bool, error)
}

// documentPath is the blob key of an object document.
func documentPath(objectName, objectID string) string {
	return strings.ToLower(objectName) + "/" + objectID + ".json"
}

// advanceHashChain links |doc| to its previously loaded hash and computes
// the digest of the content about to be persisted.
func advanceHashChain(doc *eventstore.ObjectDocument) error {
	doc.PrevHash = doc.Hash
	hash, err := eventstore.HashDocument(doc)
	if err != nil {
		return err
	}
	doc.Hash = hash
	return nil
}

// sanitizeBlobTag strips the characters a tag may not carry in a blob name.
func sanitizeBlobTag(tag string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', '*', '?', '<', '>', '|', '"', '\r', '\n':
			return -1
		}
		return r
	}, tag)
}

// sanitizeTableTag strips the characters a tag may not carry in a partition
// key.
func sanitizeTableTag(tag string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == '#' || r == '?':
			return -1
		case r <= 0x1F, r >= 0x7F && r <= 0x9F:
			return -1
		}
		return r
	}, tag)
}
