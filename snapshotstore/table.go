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

package snapshotstore

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/tablestore"
)

const (
	colStreamID      = "StreamIdentifier"
	colVersion       = "Version"
	colName          = "Name"
	colAggregateType = "AggregateType"
	colData          = "Data"
	colCreatedAt     = "CreatedAt"
)

// TableSnapshotStore stores one row per snapshot, partitioned by
// {objectName_lc}_{streamId} and row-keyed by the padded version.
type TableSnapshotStore struct {
	ts  tablestore.TableStore
	log *logrus.Logger
}

var _ SnapshotStore = &TableSnapshotStore{}

// NewTableSnapshotStore creates a new instance of a TableSnapshotStore
func NewTableSnapshotStore(ts tablestore.TableStore, log *logrus.Logger) *TableSnapshotStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TableSnapshotStore{ts: ts, log: log}
}

// Set upserts |snap| unconditionally.
func (s *TableSnapshotStore) Set(ctx context.Context, doc *eventstore.ObjectDocument, snap eventstore.Snapshot) error {
	if err := validateSnapshot(doc, snap); err != nil {
		return err
	}
	snap.StreamID = doc.Active.StreamID

	_, err := s.ts.Upsert(ctx, tablestore.Row{
		PartitionKey: snapshotPartition(doc.ObjectName, snap.StreamID),
		RowKey:       snapshotVersionKey(snap.Version, snap.Name),
		Columns: map[string]any{
			colStreamID:      snap.StreamID,
			colVersion:       snap.Version,
			colName:          snap.Name,
			colAggregateType: snap.AggregateType,
			colData:          []byte(snap.Data),
			colCreatedAt:     snap.CreatedAt,
		},
	})
	if err != nil {
		return s.mapErr(err)
	}

	s.log.WithFields(logrus.Fields{"stream": snap.StreamID, "version": snap.Version}).Debug("wrote snapshot")
	return nil
}

// Get returns the snapshot at (version, name), or nil when absent.
func (s *TableSnapshotStore) Get(ctx context.Context, doc *eventstore.ObjectDocument, version int, name string) (*eventstore.Snapshot, error) {
	pk := snapshotPartition(doc.ObjectName, doc.Active.StreamID)

	row, err := s.ts.Get(ctx, pk, snapshotVersionKey(version, name))
	if tablestore.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, s.mapErr(err)
	}

	snap := snapshotFromRow(row)
	return &snap, nil
}

// List returns every snapshot of the active stream, newest version first.
func (s *TableSnapshotStore) List(ctx context.Context, doc *eventstore.ObjectDocument) ([]eventstore.Snapshot, error) {
	rows, err := tablestore.QueryAll(ctx, s.ts, tablestore.Query{
		PartitionKey: snapshotPartition(doc.ObjectName, doc.Active.StreamID),
		Descending:   true,
	})
	if tablestore.IsTableNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snaps := make([]eventstore.Snapshot, 0, len(rows))
	for _, row := range rows {
		snaps = append(snaps, snapshotFromRow(row))
	}
	return snaps, nil
}

// Delete removes the snapshot at (version, name), reporting whether one
// existed.
func (s *TableSnapshotStore) Delete(ctx context.Context, doc *eventstore.ObjectDocument, version int, name string) (bool, error) {
	pk := snapshotPartition(doc.ObjectName, doc.Active.StreamID)

	err := s.ts.Delete(ctx, pk, snapshotVersionKey(version, name), "")
	if tablestore.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, s.mapErr(err)
	}
	return true, nil
}

func (s *TableSnapshotStore) mapErr(err error) error {
	if tablestore.IsTableNotFoundError(err) {
		return eventstore.ContainerNotFoundError{Container: s.ts.Path()}
	}
	return err
}

func snapshotFromRow(row tablestore.Row) eventstore.Snapshot {
	return eventstore.Snapshot{
		StreamID:      row.Str(colStreamID),
		Version:       row.Int(colVersion),
		Name:          row.Str(colName),
		AggregateType: row.Str(colAggregateType),
		Data:          json.RawMessage(row.Bytes(colData)),
		CreatedAt:     row.Time(colCreatedAt),
	}
}
