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

// Package tablestore provides the wide-column capability the event stores are
// built on: rows addressed by (partition key, row key), version-conditional
// writes, range queries with native paging, and atomic per-partition batches.
package tablestore

import (
	"context"
	"time"
)

// MaxBatchSize is the largest number of operations accepted by SubmitBatch.
const MaxBatchSize = 100

// Row is a single wide-column entity. Column values are restricted to
// string, int, int64, bool, []byte and time.Time. ETag is the version tag
// assigned by the store on every write; it is ignored on input except where
// an operation documents otherwise.
type Row struct {
	PartitionKey string
	RowKey       string
	ETag         string
	Columns      map[string]any
}

// Str returns the named column as a string.
func (r Row) Str(col string) string {
	if v, ok := r.Columns[col].(string); ok {
		return v
	}
	return ""
}

// Int returns the named column as an int.
func (r Row) Int(col string) int {
	switch v := r.Columns[col].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// Int64 returns the named column as an int64.
func (r Row) Int64(col string) int64 {
	switch v := r.Columns[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// Bool returns the named column as a bool.
func (r Row) Bool(col string) bool {
	if v, ok := r.Columns[col].(bool); ok {
		return v
	}
	return false
}

// Bytes returns the named column as a byte slice.
func (r Row) Bytes(col string) []byte {
	if v, ok := r.Columns[col].([]byte); ok {
		return v
	}
	return nil
}

// Time returns the named column as a time.Time.
func (r Row) Time(col string) time.Time {
	switch v := r.Columns[col].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Has reports whether the named column is present.
func (r Row) Has(col string) bool {
	_, ok := r.Columns[col]
	return ok
}

// Query describes a row-key range scan within a partition. An empty
// PartitionKey scans all partitions (used only by the projection-status
// recoverer; expensive). Bounds are inclusive; empty bounds are open.
type Query struct {
	PartitionKey string
	RowKeyGE     string
	RowKeyLE     string
	Select       []string
	PageSize     int
	Token        string
	Descending   bool
}

// Page is one page of query results. NextToken is empty on the final page.
type Page struct {
	Rows      []Row
	NextToken string
}

// Operation selects the action of a BatchOperation.
type Operation int

const (
	OpInsert Operation = iota
	OpUpsert
	OpDelete
)

// BatchOperation is a single action within an atomic batch.
type BatchOperation struct {
	Op  Operation
	Row Row
}

// TableStore is an interface for storing and retrieving versioned rows.
type TableStore interface {
	// Path returns this store's table name.
	Path() string

	// Get returns the row addressed by (pk, rk), or NotFound.
	Get(ctx context.Context, pk, rk string) (Row, error)

	// Query returns one page of rows matching |q|, ordered by row key.
	Query(ctx context.Context, q Query) (Page, error)

	// Insert writes a row that must not already exist; EntityExists
	// otherwise. Returns the new version tag.
	Insert(ctx context.Context, row Row) (string, error)

	// Upsert writes a row unconditionally, replacing any existing columns.
	Upsert(ctx context.Context, row Row) (string, error)

	// Update replaces a row whose current version must equal |etag|;
	// ConditionFailed otherwise.
	Update(ctx context.Context, row Row, etag string) (string, error)

	// Delete removes the row addressed by (pk, rk). A non-empty |etag| makes
	// the delete conditional. Deleting an absent row returns NotFound.
	Delete(ctx context.Context, pk, rk, etag string) error

	// SubmitBatch applies up to MaxBatchSize operations atomically. All
	// operations must share one partition key.
	SubmitBatch(ctx context.Context, ops []BatchOperation) error
}

// QueryAll drains every page of |q| through |ts| and returns the combined
// rows. Callers that can bound their ranges should prefer paging.
func QueryAll(ctx context.Context, ts TableStore, q Query) ([]Row, error) {
	var rows []Row
	for {
		page, err := ts.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page.Rows...)
		if page.NextToken == "" {
			return rows, nil
		}
		q.Token = page.NextToken
	}
}
