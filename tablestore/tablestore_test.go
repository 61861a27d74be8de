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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(pk, rk string, cols map[string]any) Row {
	return Row{PartitionKey: pk, RowKey: rk, Columns: cols}
}

func TestInsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	now := time.Now().UTC().Truncate(time.Second)
	etag, err := ts.Insert(ctx, row("p", "r", map[string]any{
		"S": "str", "I": 42, "B": true, "Bin": []byte{1, 2, 3}, "T": now,
	}))
	require.NoError(t, err)
	require.NotEmpty(t, etag)

	got, err := ts.Get(ctx, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, etag, got.ETag)
	assert.Equal(t, "str", got.Str("S"))
	assert.Equal(t, 42, got.Int("I"))
	assert.True(t, got.Bool("B"))
	assert.Equal(t, []byte{1, 2, 3}, got.Bytes("Bin"))
	assert.True(t, now.Equal(got.Time("T")))
}

func TestInsertExisting(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	_, err := ts.Insert(ctx, row("p", "r", nil))
	require.NoError(t, err)

	_, err = ts.Insert(ctx, row("p", "r", nil))
	assert.True(t, IsEntityExistsError(err))
}

func TestUpdateWithETag(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	etag, err := ts.Insert(ctx, row("p", "r", map[string]any{"N": 1}))
	require.NoError(t, err)

	etag2, err := ts.Update(ctx, row("p", "r", map[string]any{"N": 2}), etag)
	require.NoError(t, err)
	require.NotEqual(t, etag, etag2)

	_, err = ts.Update(ctx, row("p", "r", map[string]any{"N": 3}), etag)
	assert.True(t, IsConditionFailedError(err))

	got, err := ts.Get(ctx, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Int("N"))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	_, err := ts.Insert(ctx, row("p", "r", nil))
	require.NoError(t, err)

	require.NoError(t, ts.Delete(ctx, "p", "r", ""))
	assert.True(t, IsNotFoundError(ts.Delete(ctx, "p", "r", "")))

	_, err = ts.Get(ctx, "p", "r")
	assert.True(t, IsNotFoundError(err))
}

func TestQueryRange(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	for i := 0; i < 10; i++ {
		_, err := ts.Insert(ctx, row("p", fmt.Sprintf("%03d", i), map[string]any{"V": i}))
		require.NoError(t, err)
	}

	rows, err := QueryAll(ctx, ts, Query{PartitionKey: "p", RowKeyGE: "003", RowKeyLE: "007"})
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "003", rows[0].RowKey)
	assert.Equal(t, "007", rows[4].RowKey)
}

func TestQueryDescendingPaged(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	for i := 0; i < 7; i++ {
		_, err := ts.Insert(ctx, row("p", fmt.Sprintf("%03d", i), nil))
		require.NoError(t, err)
	}

	var keys []string
	q := Query{PartitionKey: "p", Descending: true, PageSize: 3}
	for {
		page, err := ts.Query(ctx, q)
		require.NoError(t, err)
		for _, r := range page.Rows {
			keys = append(keys, r.RowKey)
		}
		if page.NextToken == "" {
			break
		}
		q.Token = page.NextToken
	}

	require.Len(t, keys, 7)
	assert.Equal(t, "006", keys[0])
	assert.Equal(t, "000", keys[6])
}

func TestQueryFullScan(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	_, err := ts.Insert(ctx, row("p1", "r1", nil))
	require.NoError(t, err)
	_, err = ts.Insert(ctx, row("p2", "r1", nil))
	require.NoError(t, err)

	rows, err := QueryAll(ctx, ts, Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestQuerySelect(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	_, err := ts.Insert(ctx, row("p", "r", map[string]any{"A": 1, "B": 2}))
	require.NoError(t, err)

	rows, err := QueryAll(ctx, ts, Query{PartitionKey: "p", Select: []string{"A"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Has("A"))
	assert.False(t, rows[0].Has("B"))
}

func TestSubmitBatchAtomicity(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	_, err := ts.Insert(ctx, row("p", "exists", nil))
	require.NoError(t, err)

	// One failing insert poisons the whole batch.
	err = ts.SubmitBatch(ctx, []BatchOperation{
		{Op: OpInsert, Row: row("p", "new", nil)},
		{Op: OpInsert, Row: row("p", "exists", nil)},
	})
	require.True(t, IsEntityExistsError(err))

	_, err = ts.Get(ctx, "p", "new")
	assert.True(t, IsNotFoundError(err))
}

func TestSubmitBatchSinglePartition(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	err := ts.SubmitBatch(ctx, []BatchOperation{
		{Op: OpInsert, Row: row("p1", "r", nil)},
		{Op: OpInsert, Row: row("p2", "r", nil)},
	})
	require.Error(t, err)
}

func TestSubmitBatchTooLarge(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	ops := make([]BatchOperation, MaxBatchSize+1)
	for i := range ops {
		ops[i] = BatchOperation{Op: OpInsert, Row: row("p", fmt.Sprintf("%03d", i), nil)}
	}
	require.Error(t, ts.SubmitBatch(ctx, ops))
}

func TestSubmitBatchMixedOps(t *testing.T) {
	ctx := context.Background()
	ts := NewInMemoryTableStore("t")

	_, err := ts.Insert(ctx, row("p", "old", nil))
	require.NoError(t, err)

	err = ts.SubmitBatch(ctx, []BatchOperation{
		{Op: OpInsert, Row: row("p", "new", nil)},
		{Op: OpUpsert, Row: row("p", "old", map[string]any{"N": 1})},
		{Op: OpDelete, Row: row("p", "old", nil)},
	})
	require.NoError(t, err)

	_, err = ts.Get(ctx, "p", "old")
	assert.True(t, IsNotFoundError(err))
	_, err = ts.Get(ctx, "p", "new")
	assert.NoError(t, err)
}
