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

package projection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/payload"
	"github.com/dolthub/eventstore/tablestore"
)

// checkpointPartition holds every chunk and pointer row of the chunked
// layout. Legacy single-row checkpoints live under their projection's name.
const checkpointPartition = "checkpoint"

const (
	colChunkData       = "Data"
	colChunkTotal      = "TotalChunks"
	colChunkIndex      = "ChunkIndex"
	colChunkCreatedAt  = "CreatedAt"
	colChunkProjection = "ProjectionName"

	colPointerFingerprint = "Fingerprint"
	colPointerLastUpdated = "LastUpdated"
	colPointerStatus      = "Status"

	colLegacyJSON = "CheckpointJson"
	colLegacyData = "CheckpointData"
)

// pointerStatusCurrent marks a pointer row as the live checkpoint.
const pointerStatusCurrent = "Current"

// CheckpointStore persists projection checkpoints as compressed,
// fingerprint-addressed chunk rows plus one mutable pointer row per
// projection. Historical fingerprints are retained until DeleteAll.
type CheckpointStore struct {
	ts    tablestore.TableStore
	codec payload.Codec
	log   *logrus.Logger
	now   func() time.Time
}

// NewCheckpointStore creates a new instance of a CheckpointStore
func NewCheckpointStore(ts tablestore.TableStore, log *logrus.Logger) *CheckpointStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CheckpointStore{
		ts:    ts,
		codec: payload.DefaultCodec(),
		log:   log,
		now:   time.Now,
	}
}

// Fingerprint returns the content address of a serialized checkpoint.
func Fingerprint(checkpoint []byte) string {
	sum := sha256.Sum256(checkpoint)
	return hex.EncodeToString(sum[:])
}

func chunkRowKey(fingerprint string, i int) string {
	return fmt.Sprintf("%s_%010d", fingerprint, i)
}

func pointerRowKey(projectionName string) string {
	return strings.ToLower(projectionName) + "_current"
}

// Save persists |checkpoint| and points the projection at its fingerprint.
// Chunk writes are idempotent per fingerprint, so a crashed save leaves no
// partial state visible; earlier fingerprints stay loadable.
func (s *CheckpointStore) Save(ctx context.Context, projectionName string, checkpoint []byte) (string, error) {
	if projectionName == "" {
		return "", eventstore.InvalidArgumentError{Name: "projectionName", Reason: "must not be empty"}
	}

	fp := Fingerprint(checkpoint)
	compressed, err := payload.Compress(checkpoint)
	if err != nil {
		return "", err
	}
	chunks := payload.Split(compressed, s.codec.MaxChunkSize)
	now := s.now().UTC()

	var ops []tablestore.BatchOperation
	for i, chunk := range chunks {
		ops = append(ops, tablestore.BatchOperation{Op: tablestore.OpUpsert, Row: tablestore.Row{
			PartitionKey: checkpointPartition,
			RowKey:       chunkRowKey(fp, i),
			Columns: map[string]any{
				colChunkData:       chunk,
				colChunkTotal:      len(chunks),
				colChunkIndex:      i,
				colChunkCreatedAt:  now,
				colChunkProjection: projectionName,
			},
		}})
	}
	for start := 0; start < len(ops); start += tablestore.MaxBatchSize {
		end := min(start+tablestore.MaxBatchSize, len(ops))
		if err := s.ts.SubmitBatch(ctx, ops[start:end]); err != nil {
			return "", s.mapErr(err)
		}
	}

	_, err = s.ts.Upsert(ctx, tablestore.Row{
		PartitionKey: checkpointPartition,
		RowKey:       pointerRowKey(projectionName),
		Columns: map[string]any{
			colPointerFingerprint: fp,
			colPointerLastUpdated: now,
			colPointerStatus:      pointerStatusCurrent,
			colChunkProjection:    projectionName,
		},
	})
	if err != nil {
		return "", s.mapErr(err)
	}

	s.log.WithFields(logrus.Fields{
		"projection":  projectionName,
		"fingerprint": fp,
		"chunks":      len(chunks),
		"size":        humanize.Bytes(uint64(len(checkpoint))),
	}).Debug("saved projection checkpoint")
	return fp, nil
}

// Load returns the projection's current checkpoint and its fingerprint, or
// (nil, "") when none exists. Projections saved before the chunked layout are
// read from their legacy single row.
func (s *CheckpointStore) Load(ctx context.Context, projectionName string) ([]byte, string, error) {
	pointer, err := s.ts.Get(ctx, checkpointPartition, pointerRowKey(projectionName))
	if tablestore.IsNotFoundError(err) || tablestore.IsTableNotFoundError(err) {
		return s.loadLegacy(ctx, projectionName)
	}
	if err != nil {
		return nil, "", s.mapErr(err)
	}

	fp := pointer.Str(colPointerFingerprint)
	if fp == "" {
		return s.loadLegacy(ctx, projectionName)
	}

	checkpoint, err := s.LoadFromFingerprint(ctx, fp)
	if err != nil {
		return nil, "", err
	}
	return checkpoint, fp, nil
}

// LoadFromFingerprint reassembles the checkpoint stored under |fingerprint|.
func (s *CheckpointStore) LoadFromFingerprint(ctx context.Context, fingerprint string) ([]byte, error) {
	rows, err := tablestore.QueryAll(ctx, s.ts, tablestore.Query{
		PartitionKey: checkpointPartition,
		RowKeyGE:     chunkRowKey(fingerprint, 0),
		RowKeyLE:     fmt.Sprintf("%s_9999999999", fingerprint),
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	if len(rows) == 0 {
		return nil, eventstore.CorruptPayloadError{
			StreamID: fingerprint,
			Reason:   "checkpoint has no chunk rows",
		}
	}

	total := rows[0].Int(colChunkTotal)
	chunks := make([][]byte, total)
	for _, row := range rows {
		i := row.Int(colChunkIndex)
		if i < 0 || i >= total {
			return nil, eventstore.CorruptPayloadError{
				StreamID: fingerprint,
				Reason:   fmt.Sprintf("chunk index %d outside of %d chunks", i, total),
			}
		}
		chunks[i] = row.Bytes(colChunkData)
	}
	for i, chunk := range chunks {
		if chunk == nil {
			return nil, eventstore.CorruptPayloadError{
				StreamID: fingerprint,
				Reason:   fmt.Sprintf("missing checkpoint chunk %d of %d", i, total),
			}
		}
	}

	checkpoint, err := payload.Decompress(payload.Join(chunks))
	if err != nil {
		return nil, eventstore.CorruptPayloadError{StreamID: fingerprint, Reason: err.Error()}
	}
	return checkpoint, nil
}

// loadLegacy reads the single-row layout used before chunked checkpoints.
func (s *CheckpointStore) loadLegacy(ctx context.Context, projectionName string) ([]byte, string, error) {
	row, err := s.ts.Get(ctx, projectionName, projectionName)
	if tablestore.IsNotFoundError(err) || tablestore.IsTableNotFoundError(err) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", s.mapErr(err)
	}

	if row.Has(colLegacyJSON) {
		return []byte(row.Str(colLegacyJSON)), "", nil
	}
	if row.Has(colLegacyData) {
		checkpoint, err := payload.Decompress(row.Bytes(colLegacyData))
		if err != nil {
			return nil, "", eventstore.CorruptPayloadError{StreamID: projectionName, Reason: err.Error()}
		}
		return checkpoint, "", nil
	}
	return nil, "", nil
}

// DeleteAll removes the projection's pointer and every chunk row of every
// fingerprint it ever saved.
func (s *CheckpointStore) DeleteAll(ctx context.Context, projectionName string) error {
	rows, err := tablestore.QueryAll(ctx, s.ts, tablestore.Query{
		PartitionKey: checkpointPartition,
		Select:       []string{colChunkProjection},
	})
	if err != nil {
		if tablestore.IsTableNotFoundError(err) {
			return nil
		}
		return s.mapErr(err)
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if row.Str(colChunkProjection) != projectionName {
			continue
		}
		err := s.ts.Delete(ctx, row.PartitionKey, row.RowKey, "")
		if err != nil && !tablestore.IsNotFoundError(err) {
			return s.mapErr(err)
		}
	}

	// Legacy single-row layout.
	err = s.ts.Delete(ctx, projectionName, projectionName, "")
	if err != nil && !tablestore.IsNotFoundError(err) && !tablestore.IsTableNotFoundError(err) {
		return s.mapErr(err)
	}
	return nil
}

func (s *CheckpointStore) mapErr(err error) error {
	if tablestore.IsTableNotFoundError(err) {
		return eventstore.ContainerNotFoundError{Container: s.ts.Path()}
	}
	return err
}
