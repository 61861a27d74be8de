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

	"github.com/dolthub/eventstore/tablestore"
)

const (
	colTagValue      = "Tag"
	colTagObjectName = "ObjectName"
	colTagObjectID   = "ObjectId"
	colTagStreamID   = "StreamIdentifier"
)

// TableDocumentTagStore keeps one row per (tag, objectID), partitioned by
// {objectName_lc}_{tag}. Membership changes are single-row upserts and
// deletes, so no CAS loop is needed.
type TableDocumentTagStore struct {
	ts tablestore.TableStore
}

var _ DocumentTagStore = &TableDocumentTagStore{}

// NewTableDocumentTagStore creates a new instance of a TableDocumentTagStore
func NewTableDocumentTagStore(ts tablestore.TableStore) *TableDocumentTagStore {
	return &TableDocumentTagStore{ts: ts}
}

func documentTagPartition(objectName, tag string) string {
	return strings.ToLower(objectName) + "_" + sanitizeTableTag(tag)
}

// SetTag adds |objectID| to the tag's index. Idempotent.
func (s *TableDocumentTagStore) SetTag(ctx context.Context, objectName, tag, objectID string) error {
	_, err := s.ts.Upsert(ctx, tablestore.Row{
		PartitionKey: documentTagPartition(objectName, tag),
		RowKey:       objectID,
		Columns: map[string]any{
			colTagValue:      tag,
			colTagObjectName: objectName,
			colTagObjectID:   objectID,
		},
	})
	return err
}

// RemoveTag removes |objectID| from the tag's index. Absent entries are a
// no-op.
func (s *TableDocumentTagStore) RemoveTag(ctx context.Context, objectName, tag, objectID string) error {
	err := s.ts.Delete(ctx, documentTagPartition(objectName, tag), objectID, "")
	if tablestore.IsNotFoundError(err) {
		return nil
	}
	return err
}

// GetObjectIDs returns every id indexed under |tag|.
func (s *TableDocumentTagStore) GetObjectIDs(ctx context.Context, objectName, tag string) ([]string, error) {
	rows, err := tablestore.QueryAll(ctx, s.ts, tablestore.Query{
		PartitionKey: documentTagPartition(objectName, tag),
	})
	if tablestore.IsTableNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RowKey)
	}
	return ids, nil
}

// TableStreamTagStore keeps one row per (tag, streamID), partitioned by the
// sanitized tag.
type TableStreamTagStore struct {
	ts tablestore.TableStore
}

var _ StreamTagStore = &TableStreamTagStore{}

// NewTableStreamTagStore creates a new instance of a TableStreamTagStore
func NewTableStreamTagStore(ts tablestore.TableStore) *TableStreamTagStore {
	return &TableStreamTagStore{ts: ts}
}

// SetTag adds |streamID| to the tag's index. Idempotent.
func (s *TableStreamTagStore) SetTag(ctx context.Context, tag, streamID string) error {
	_, err := s.ts.Upsert(ctx, tablestore.Row{
		PartitionKey: sanitizeTableTag(tag),
		RowKey:       streamID,
		Columns: map[string]any{
			colTagValue:    tag,
			colTagStreamID: streamID,
		},
	})
	return err
}

// GetStreamIDs returns every stream id indexed under |tag|.
func (s *TableStreamTagStore) GetStreamIDs(ctx context.Context, tag string) ([]string, error) {
	rows, err := tablestore.QueryAll(ctx, s.ts, tablestore.Query{
		PartitionKey: sanitizeTableTag(tag),
	})
	if tablestore.IsTableNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RowKey)
	}
	return ids, nil
}
