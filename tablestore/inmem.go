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

package tablestore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// InMemoryTableStore provides an in memory implementation of the TableStore
// interface.
type InMemoryTableStore struct {
	table      string
	mutex      sync.RWMutex
	partitions map[string]map[string]storedRow
}

var _ TableStore = &InMemoryTableStore{}

type storedRow struct {
	etag    string
	columns map[string]any
}

// NewInMemoryTableStore creates an instance of an InMemoryTableStore
func NewInMemoryTableStore(table string) *InMemoryTableStore {
	return &InMemoryTableStore{
		table:      table,
		partitions: make(map[string]map[string]storedRow),
	}
}

func (ts *InMemoryTableStore) Path() string {
	return ts.table
}

// Get returns the row addressed by (pk, rk), or NotFound.
func (ts *InMemoryTableStore) Get(ctx context.Context, pk, rk string) (Row, error) {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()

	sr, ok := ts.partitions[pk][rk]
	if !ok {
		return Row{}, NotFound{pk, rk}
	}
	return rowFromStored(pk, rk, sr, nil), nil
}

// Query returns one page of rows ordered by (partition key, row key).
func (ts *InMemoryTableStore) Query(ctx context.Context, q Query) (Page, error) {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()

	type fullKey struct{ pk, rk string }
	var keys []fullKey

	if q.PartitionKey != "" {
		for rk := range ts.partitions[q.PartitionKey] {
			keys = append(keys, fullKey{q.PartitionKey, rk})
		}
	} else {
		for pk, rows := range ts.partitions {
			for rk := range rows {
				keys = append(keys, fullKey{pk, rk})
			}
		}
	}

	filtered := keys[:0]
	for _, k := range keys {
		if q.RowKeyGE != "" && k.rk < q.RowKeyGE {
			continue
		}
		if q.RowKeyLE != "" && k.rk > q.RowKeyLE {
			continue
		}
		filtered = append(filtered, k)
	}
	keys = filtered

	less := func(i, j int) bool {
		if keys[i].pk != keys[j].pk {
			return keys[i].pk < keys[j].pk
		}
		return keys[i].rk < keys[j].rk
	}
	if q.Descending {
		sort.Slice(keys, func(i, j int) bool { return less(j, i) })
	} else {
		sort.Slice(keys, less)
	}

	// The continuation token is the composite key of the last row returned.
	if q.Token != "" {
		pk, rk, err := splitToken(q.Token)
		if err != nil {
			return Page{}, err
		}
		after := func(k fullKey) bool {
			if k.pk != pk {
				return (k.pk > pk) != q.Descending
			}
			return (k.rk > rk) != q.Descending
		}
		i := 0
		for i < len(keys) && !after(keys[i]) {
			i++
		}
		keys = keys[i:]
	}

	var page Page
	limited := q.PageSize > 0 && len(keys) > q.PageSize
	if limited {
		keys = keys[:q.PageSize]
	}
	for _, k := range keys {
		page.Rows = append(page.Rows, rowFromStored(k.pk, k.rk, ts.partitions[k.pk][k.rk], q.Select))
	}
	if limited && len(keys) > 0 {
		last := keys[len(keys)-1]
		page.NextToken = joinToken(last.pk, last.rk)
	}
	return page, nil
}

// Insert writes a row that must not already exist.
func (ts *InMemoryTableStore) Insert(ctx context.Context, row Row) (string, error) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	if _, ok := ts.partitions[row.PartitionKey][row.RowKey]; ok {
		return "", EntityExists{row.PartitionKey, row.RowKey}
	}
	return ts.put(row), nil
}

// Upsert writes a row unconditionally.
func (ts *InMemoryTableStore) Upsert(ctx context.Context, row Row) (string, error) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()
	return ts.put(row), nil
}

// Update replaces a row whose current version must equal |etag|.
func (ts *InMemoryTableStore) Update(ctx context.Context, row Row, etag string) (string, error) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	sr, ok := ts.partitions[row.PartitionKey][row.RowKey]
	if !ok {
		return "", NotFound{row.PartitionKey, row.RowKey}
	}
	if sr.etag != etag {
		return "", ConditionFailed{row.PartitionKey, row.RowKey, etag, sr.etag}
	}
	return ts.put(row), nil
}

// Delete removes the row addressed by (pk, rk), conditionally when |etag| is
// non-empty.
func (ts *InMemoryTableStore) Delete(ctx context.Context, pk, rk, etag string) error {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	sr, ok := ts.partitions[pk][rk]
	if !ok {
		return NotFound{pk, rk}
	}
	if etag != "" && sr.etag != etag {
		return ConditionFailed{pk, rk, etag, sr.etag}
	}

	delete(ts.partitions[pk], rk)
	if len(ts.partitions[pk]) == 0 {
		delete(ts.partitions, pk)
	}
	return nil
}

// SubmitBatch applies the operations atomically: every operation is validated
// before any row is touched.
func (ts *InMemoryTableStore) SubmitBatch(ctx context.Context, ops []BatchOperation) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > MaxBatchSize {
		return fmt.Errorf("batch of %d operations exceeds the maximum of %d", len(ops), MaxBatchSize)
	}

	pk := ops[0].Row.PartitionKey
	for _, op := range ops {
		if op.Row.PartitionKey != pk {
			return fmt.Errorf("batch spans partitions %q and %q", pk, op.Row.PartitionKey)
		}
	}

	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	for _, op := range ops {
		_, exists := ts.partitions[pk][op.Row.RowKey]
		switch op.Op {
		case OpInsert:
			if exists {
				return EntityExists{pk, op.Row.RowKey}
			}
		case OpDelete:
			if !exists {
				return NotFound{pk, op.Row.RowKey}
			}
		}
	}

	for _, op := range ops {
		switch op.Op {
		case OpInsert, OpUpsert:
			ts.put(op.Row)
		case OpDelete:
			delete(ts.partitions[pk], op.Row.RowKey)
		}
	}
	if len(ts.partitions[pk]) == 0 {
		delete(ts.partitions, pk)
	}
	return nil
}

func (ts *InMemoryTableStore) put(row Row) string {
	part, ok := ts.partitions[row.PartitionKey]
	if !ok {
		part = make(map[string]storedRow)
		ts.partitions[row.PartitionKey] = part
	}

	etag := uuid.New().String()
	part[row.RowKey] = storedRow{etag: etag, columns: copyColumns(row.Columns, nil)}
	return etag
}

func rowFromStored(pk, rk string, sr storedRow, sel []string) Row {
	return Row{
		PartitionKey: pk,
		RowKey:       rk,
		ETag:         sr.etag,
		Columns:      copyColumns(sr.columns, sel),
	}
}

func copyColumns(cols map[string]any, sel []string) map[string]any {
	selected := func(name string) bool {
		if len(sel) == 0 {
			return true
		}
		for _, s := range sel {
			if s == name {
				return true
			}
		}
		return false
	}

	cp := make(map[string]any, len(cols))
	for k, v := range cols {
		if !selected(k) {
			continue
		}
		if b, ok := v.([]byte); ok {
			bc := make([]byte, len(b))
			copy(bc, b)
			cp[k] = bc
			continue
		}
		cp[k] = v
	}
	return cp
}

const tokenSep = "\x00"

func joinToken(pk, rk string) string {
	return pk + tokenSep + rk
}

func splitToken(token string) (pk, rk string, err error) {
	parts := strings.SplitN(token, tokenSep, 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed continuation token %q", token)
	}
	return parts[0], parts[1], nil
}
