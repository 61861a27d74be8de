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
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/blobstore"
)

// listPageSize bounds each listing round-trip when enumerating a stream's
// snapshots.
const listPageSize = 500

// BlobSnapshotStore stores each snapshot as one JSON blob under
// snapshot/{streamId}-{version}[_name].json.
type BlobSnapshotStore struct {
	bs  blobstore.Blobstore
	log *logrus.Logger
}

var _ SnapshotStore = &BlobSnapshotStore{}

// NewBlobSnapshotStore creates a new instance of a BlobSnapshotStore
func NewBlobSnapshotStore(bs blobstore.Blobstore, log *logrus.Logger) *BlobSnapshotStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BlobSnapshotStore{bs: bs, log: log}
}

// Set upserts |snap| unconditionally.
func (s *BlobSnapshotStore) Set(ctx context.Context, doc *eventstore.ObjectDocument, snap eventstore.Snapshot) error {
	if err := validateSnapshot(doc, snap); err != nil {
		return err
	}
	snap.StreamID = doc.Active.StreamID

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	key := snapshotBlobKey(snap.StreamID, snap.Version, snap.Name)
	if _, err := s.bs.Put(ctx, key, data, blobstore.None); err != nil {
		return s.mapErr(err)
	}

	s.log.WithFields(logrus.Fields{"stream": snap.StreamID, "version": snap.Version}).Debug("wrote snapshot")
	return nil
}

// Get returns the snapshot at (version, name), or nil when absent.
func (s *BlobSnapshotStore) Get(ctx context.Context, doc *eventstore.ObjectDocument, version int, name string) (*eventstore.Snapshot, error) {
	key := snapshotBlobKey(doc.Active.StreamID, version, name)

	data, _, err := s.bs.Get(ctx, key, blobstore.None)
	if blobstore.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, s.mapErr(err)
	}

	var snap eventstore.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// List returns every snapshot of the active stream, newest version first.
func (s *BlobSnapshotStore) List(ctx context.Context, doc *eventstore.ObjectDocument) ([]eventstore.Snapshot, error) {
	prefix := "snapshot/" + strings.ToLower(doc.Active.StreamID) + "-"

	var snaps []eventstore.Snapshot
	token := ""
	for {
		page, err := s.bs.List(ctx, prefix, token, listPageSize)
		if err != nil {
			if blobstore.IsContainerNotFoundError(err) {
				return nil, nil
			}
			return nil, err
		}
		for _, key := range page.Keys {
			data, _, err := s.bs.Get(ctx, key, blobstore.None)
			if blobstore.IsNotFoundError(err) {
				continue
			}
			if err != nil {
				return nil, s.mapErr(err)
			}
			var snap eventstore.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return nil, err
			}
			snaps = append(snaps, snap)
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].Version > snaps[j].Version
	})
	return snaps, nil
}

// Delete removes the snapshot at (version, name), reporting whether one
// existed.
func (s *BlobSnapshotStore) Delete(ctx context.Context, doc *eventstore.ObjectDocument, version int, name string) (bool, error) {
	key := snapshotBlobKey(doc.Active.StreamID, version, name)

	err := s.bs.Delete(ctx, key, blobstore.None)
	if blobstore.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, s.mapErr(err)
	}
	return true, nil
}

func (s *BlobSnapshotStore) mapErr(err error) error {
	if blobstore.IsContainerNotFoundError(err) {
		return eventstore.ContainerNotFoundError{Container: s.bs.Path()}
	}
	return err
}
