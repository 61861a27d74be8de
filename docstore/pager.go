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
	"strings"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/blobstore"
	"github.com/dolthub/eventstore/tablestore"
)

// BlobObjectIDPager enumerates object ids by listing the document prefix of a
// type, one substrate page at a time.
type BlobObjectIDPager struct {
	bs blobstore.Blobstore
}

var _ ObjectIDPager = &BlobObjectIDPager{}

// NewBlobObjectIDPager creates a new instance of a BlobObjectIDPager
func NewBlobObjectIDPager(bs blobstore.Blobstore) *BlobObjectIDPager {
	return &BlobObjectIDPager{bs: bs}
}

// GetObjectIDs returns one page of ids under {objectName_lc}/.
func (p *BlobObjectIDPager) GetObjectIDs(ctx context.Context, objectName, token string, pageSize int) (ObjectIDPage, error) {
	if pageSize < 1 {
		return ObjectIDPage{}, eventstore.InvalidArgumentError{Name: "pageSize", Reason: "must be positive"}
	}
	prefix := strings.ToLower(objectName) + "/"

	lp, err := p.bs.List(ctx, prefix, token, pageSize)
	if err != nil {
		if blobstore.IsContainerNotFoundError(err) {
			return ObjectIDPage{}, eventstore.ContainerNotFoundError{Container: p.bs.Path()}
		}
		return ObjectIDPage{}, err
	}

	page := ObjectIDPage{PageSize: pageSize, NextToken: lp.NextToken}
	seen := make(map[string]struct{}, len(lp.Keys))
	for _, key := range lp.Keys {
		id, ok := objectIDFromKey(key, prefix)
		if !ok {
			continue
		}
		// A listing may surface duplicate keys across page boundaries.
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		page.Items = append(page.Items, id)
	}
	return page, nil
}

// Count drains every page. Expensive on large types.
func (p *BlobObjectIDPager) Count(ctx context.Context, objectName string) (int, error) {
	total := 0
	token := ""
	for {
		page, err := p.GetObjectIDs(ctx, objectName, token, 1000)
		if err != nil {
			if eventstore.IsContainerNotFound(err) {
				return 0, nil
			}
			return 0, err
		}
		total += len(page.Items)
		if page.NextToken == "" {
			return total, nil
		}
		token = page.NextToken
	}
}

// Exists performs a single point lookup of the document blob.
func (p *BlobObjectIDPager) Exists(ctx context.Context, objectName, objectID string) (bool, error) {
	ok, err := p.bs.Exists(ctx, documentPath(objectName, objectID))
	if blobstore.IsContainerNotFoundError(err) {
		return false, nil
	}
	return ok, err
}

// objectIDFromKey extracts the object id from a document blob key, rejecting
// keys outside the {prefix}{id}.json shape.
func objectIDFromKey(key, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ".json")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// TableObjectIDPager enumerates object ids by querying the main document
// partition of a type.
type TableObjectIDPager struct {
	ts tablestore.TableStore
}

var _ ObjectIDPager = &TableObjectIDPager{}

// NewTableObjectIDPager creates a new instance of a TableObjectIDPager
func NewTableObjectIDPager(ts tablestore.TableStore) *TableObjectIDPager {
	return &TableObjectIDPager{ts: ts}
}

// GetObjectIDs returns one page of ids from the type's partition.
func (p *TableObjectIDPager) GetObjectIDs(ctx context.Context, objectName, token string, pageSize int) (ObjectIDPage, error) {
	if pageSize < 1 {
		return ObjectIDPage{}, eventstore.InvalidArgumentError{Name: "pageSize", Reason: "must be positive"}
	}
	page, err := p.ts.Query(ctx, tablestore.Query{
		PartitionKey: strings.ToLower(objectName),
		Select:       []string{colDocObjectID},
		PageSize:     pageSize,
		Token:        token,
	})
	if err != nil {
		if tablestore.IsTableNotFoundError(err) {
			return ObjectIDPage{}, eventstore.ContainerNotFoundError{Container: p.ts.Path()}
		}
		return ObjectIDPage{}, err
	}

	out := ObjectIDPage{PageSize: pageSize, NextToken: page.NextToken}
	for _, row := range page.Rows {
		out.Items = append(out.Items, row.RowKey)
	}
	return out, nil
}

// Count drains every page. Expensive on large types.
func (p *TableObjectIDPager) Count(ctx context.Context, objectName string) (int, error) {
	total := 0
	token := ""
	for {
		page, err := p.GetObjectIDs(ctx, objectName, token, 1000)
		if err != nil {
			if eventstore.IsContainerNotFound(err) {
				return 0, nil
			}
			return 0, err
		}
		total += len(page.Items)
		if page.NextToken == "" {
			return total, nil
		}
		token = page.NextToken
	}
}

// Exists performs a single point lookup of the main document row.
func (p *TableObjectIDPager) Exists(ctx context.Context, objectName, objectID string) (bool, error) {
	_, err := p.ts.Get(ctx, strings.ToLower(objectName), objectID)
	if tablestore.IsNotFoundError(err) || tablestore.IsTableNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
