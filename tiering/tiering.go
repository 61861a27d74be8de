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

// Package tiering moves a stream's blob objects between storage tiers and
// reports per-chunk storage metrics.
package tiering

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/blobstore"
	"github.com/dolthub/eventstore/datastore"
)

// ChunkMetrics describes one stored chunk object of a stream.
type ChunkMetrics struct {
	Path       string
	SizeBytes  int64
	Tier       blobstore.AccessTier
	EventCount int
}

// StreamMetrics aggregates the storage footprint of a stream.
type StreamMetrics struct {
	StreamID   string
	TotalBytes int64
	Chunks     []ChunkMetrics
}

// TierManager changes and inspects the storage tier of a stream's objects.
// Only blob-backed streams have tiers; the table substrate has no equivalent.
type TierManager struct {
	bs  blobstore.Blobstore
	log *logrus.Logger
}

// NewTierManager creates a new instance of a TierManager
func NewTierManager(bs blobstore.Blobstore, log *logrus.Logger) *TierManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TierManager{bs: bs, log: log}
}

// SetStreamTier moves every object of the document's active stream to |tier|.
// Objects not yet written are skipped.
func (m *TierManager) SetStreamTier(ctx context.Context, doc *eventstore.ObjectDocument, tier blobstore.AccessTier) error {
	for _, path := range datastore.StreamPaths(doc) {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := m.bs.SetTier(ctx, path, tier, blobstore.RehydrateStandard)
		if blobstore.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return m.mapErr(err)
		}
	}

	m.log.WithFields(logrus.Fields{
		"stream": doc.Active.StreamID,
		"tier":   tier,
	}).Info("changed stream storage tier")
	return nil
}

// Rehydrate requests every archived object of the stream back to the hot
// tier at |priority|.
func (m *TierManager) Rehydrate(ctx context.Context, doc *eventstore.ObjectDocument, priority blobstore.RehydratePriority) error {
	for _, path := range datastore.StreamPaths(doc) {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := m.bs.SetTier(ctx, path, blobstore.TierHot, priority)
		if blobstore.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return m.mapErr(err)
		}
	}

	m.log.WithFields(logrus.Fields{
		"stream":   doc.Active.StreamID,
		"priority": priority,
	}).Info("requested stream rehydration")
	return nil
}

// Inspect reports size and tier per chunk object, with event counts taken
// from the document's chunk index.
func (m *TierManager) Inspect(ctx context.Context, doc *eventstore.ObjectDocument) (StreamMetrics, error) {
	metrics := StreamMetrics{StreamID: doc.Active.StreamID}

	counts := make(map[string]int)
	for _, c := range doc.Active.Chunks {
		if c.LastEventVersion >= c.FirstEventVersion {
			counts[datastore.BlobPath(doc.Active.StreamID, c.ChunkID)] = c.LastEventVersion - c.FirstEventVersion + 1
		}
	}
	if !doc.Active.ChunkingEnabled && doc.Active.CurrentVersion >= 0 {
		counts[datastore.BlobPath(doc.Active.StreamID, -1)] = doc.Active.CurrentVersion + 1
	}

	for _, path := range datastore.StreamPaths(doc) {
		if err := ctx.Err(); err != nil {
			return StreamMetrics{}, err
		}
		props, err := m.bs.GetProperties(ctx, path)
		if blobstore.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return StreamMetrics{}, m.mapErr(err)
		}

		metrics.Chunks = append(metrics.Chunks, ChunkMetrics{
			Path:       path,
			SizeBytes:  props.Size,
			Tier:       props.Tier,
			EventCount: counts[path],
		})
		metrics.TotalBytes += props.Size
	}
	return metrics, nil
}

func (m *TierManager) mapErr(err error) error {
	if blobstore.IsContainerNotFoundError(err) {
		return eventstore.ContainerNotFoundError{Container: m.bs.Path()}
	}
	return err
}
