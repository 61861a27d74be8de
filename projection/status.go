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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/tablestore"
)

// rebuildTimeoutError is recorded on records reclaimed by the recoverer.
const rebuildTimeoutError = "Rebuild timed out"

const (
	colStatusProjection = "ProjectionName"
	colStatusObjectID   = "ObjectId"
	colStatusValue      = "Status"
	colStatusChangedAt  = "StatusChangedAt"
	colStatusSchema     = "SchemaVersion"
	colRebuildStrategy  = "RebuildStrategy"
	colRebuildStartedAt = "RebuildStartedAt"
	colRebuildError     = "RebuildError"
	colTokenValue       = "TokenValue"
	colTokenExpiresAt   = "TokenExpiresAt"
)

// StatusStore coordinates projection rebuilds. One row per
// (projectionName, objectId); the row's version tag is the CAS guard on
// every token-validated transition.
type StatusStore struct {
	ts  tablestore.TableStore
	log *logrus.Logger
	now func() time.Time
}

// NewStatusStore creates a new instance of a StatusStore
func NewStatusStore(ts tablestore.TableStore, log *logrus.Logger) *StatusStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StatusStore{ts: ts, log: log, now: time.Now}
}

func statusPartition(projectionName string) string {
	return strings.ToLower(projectionName)
}

// StartRebuild claims a rebuild lease for (projectionName, objectID). The
// write is last-writer-wins; concurrent starters race and only the surviving
// token passes validation on later transitions.
func (s *StatusStore) StartRebuild(ctx context.Context, projectionName, objectID string, strategy RebuildStrategy, timeout time.Duration) (RebuildToken, error) {
	if projectionName == "" || objectID == "" {
		return RebuildToken{}, eventstore.InvalidArgumentError{Name: "projection", Reason: "projection name and object id are required"}
	}
	if timeout <= 0 {
		return RebuildToken{}, eventstore.InvalidArgumentError{Name: "timeout", Reason: "must be positive"}
	}

	now := s.now().UTC()
	token := RebuildToken{
		ProjectionName: projectionName,
		ObjectID:       objectID,
		Token:          uuid.New().String(),
		Strategy:       strategy,
		StartedAt:      now,
		ExpiresAt:      now.Add(timeout),
	}

	_, err := s.ts.Upsert(ctx, tablestore.Row{
		PartitionKey: statusPartition(projectionName),
		RowKey:       objectID,
		Columns: map[string]any{
			colStatusProjection: projectionName,
			colStatusObjectID:   objectID,
			colStatusValue:      string(StatusRebuilding),
			colStatusChangedAt:  now,
			colStatusSchema:     StatusSchemaVersion,
			colRebuildStrategy:  string(strategy),
			colRebuildStartedAt: now,
			colRebuildError:     "",
			colTokenValue:       token.Token,
			colTokenExpiresAt:   token.ExpiresAt,
		},
	})
	if err != nil {
		return RebuildToken{}, s.mapErr(err)
	}

	s.log.WithFields(logrus.Fields{
		"projection": projectionName,
		"object":     objectID,
		"strategy":   strategy,
		"expires":    token.ExpiresAt,
	}).Info("started projection rebuild")
	return token, nil
}

// StartCatchUp moves a rebuilding projection into CatchingUp.
func (s *StatusStore) StartCatchUp(ctx context.Context, token RebuildToken) error {
	return s.transition(ctx, token, StatusCatchingUp, false)
}

// MarkReady moves a catching-up projection into Ready.
func (s *StatusStore) MarkReady(ctx context.Context, token RebuildToken) error {
	return s.transition(ctx, token, StatusReady, false)
}

// CompleteRebuild finishes the rebuild, returning the record to Active and
// releasing the lease.
func (s *StatusStore) CompleteRebuild(ctx context.Context, token RebuildToken) error {
	return s.transition(ctx, token, StatusActive, true)
}

// CancelRebuild abandons the rebuild, releasing the lease. A non-nil |cause|
// marks the record Failed with the cause's message; otherwise it returns to
// Active.
func (s *StatusStore) CancelRebuild(ctx context.Context, token RebuildToken, cause error) error {
	to := StatusActive
	if cause != nil {
		to = StatusFailed
	}

	row, err := s.load(ctx, token.ProjectionName, token.ObjectID)
	if err != nil {
		return err
	}
	if err := s.validateToken(row, token); err != nil {
		return err
	}

	now := s.now().UTC()
	row.Columns[colStatusValue] = string(to)
	row.Columns[colStatusChangedAt] = now
	row.Columns[colTokenValue] = ""
	row.Columns[colTokenExpiresAt] = time.Time{}
	if cause != nil {
		row.Columns[colRebuildError] = cause.Error()
	}

	if _, err := s.ts.Update(ctx, row, row.ETag); err != nil {
		return s.mapErr(err)
	}
	return nil
}

// transition performs a token-validated CAS move to |to|, clearing the lease
// when |release| is set.
func (s *StatusStore) transition(ctx context.Context, token RebuildToken, to Status, release bool) error {
	row, err := s.load(ctx, token.ProjectionName, token.ObjectID)
	if err != nil {
		return err
	}
	if err := s.validateToken(row, token); err != nil {
		return err
	}

	row.Columns[colStatusValue] = string(to)
	row.Columns[colStatusChangedAt] = s.now().UTC()
	if release {
		row.Columns[colTokenValue] = ""
		row.Columns[colTokenExpiresAt] = time.Time{}
	}

	if _, err := s.ts.Update(ctx, row, row.ETag); err != nil {
		return s.mapErr(err)
	}
	return nil
}

func (s *StatusStore) load(ctx context.Context, projectionName, objectID string) (tablestore.Row, error) {
	row, err := s.ts.Get(ctx, statusPartition(projectionName), objectID)
	if tablestore.IsNotFoundError(err) {
		return tablestore.Row{}, eventstore.InvalidTokenError{
			ProjectionName: projectionName,
			ObjectID:       objectID,
			Reason:         "no rebuild in progress",
		}
	}
	if err != nil {
		return tablestore.Row{}, s.mapErr(err)
	}
	return row, nil
}

func (s *StatusStore) validateToken(row tablestore.Row, token RebuildToken) error {
	active := row.Str(colTokenValue)
	switch {
	case active == "":
		return eventstore.InvalidTokenError{
			ProjectionName: token.ProjectionName,
			ObjectID:       token.ObjectID,
			Reason:         "no active rebuild token",
		}
	case active != token.Token:
		return eventstore.InvalidTokenError{
			ProjectionName: token.ProjectionName,
			ObjectID:       token.ObjectID,
			Reason:         "token does not hold the rebuild lease",
		}
	case token.IsExpired(s.now().UTC()):
		return eventstore.TokenExpiredError{
			ProjectionName: token.ProjectionName,
			ObjectID:       token.ObjectID,
			ExpiredAt:      token.ExpiresAt,
		}
	}
	return nil
}

// RecoverStuckRebuilds promotes every record stuck in Rebuilding or
// CatchingUp with an expired lease to Failed. Records claimed by another
// recoverer between the scan and the write are skipped. Returns the number
// recovered.
func (s *StatusStore) RecoverStuckRebuilds(ctx context.Context) (int, error) {
	rows, err := tablestore.QueryAll(ctx, s.ts, tablestore.Query{})
	if err != nil {
		if tablestore.IsTableNotFoundError(err) {
			return 0, nil
		}
		return 0, err
	}

	now := s.now().UTC()
	recovered := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}

		status := Status(row.Str(colStatusValue))
		if status != StatusRebuilding && status != StatusCatchingUp {
			continue
		}
		if row.Str(colTokenValue) == "" {
			continue
		}
		if now.Before(row.Time(colTokenExpiresAt)) {
			continue
		}

		row.Columns[colStatusValue] = string(StatusFailed)
		row.Columns[colStatusChangedAt] = now
		row.Columns[colRebuildError] = rebuildTimeoutError
		row.Columns[colTokenValue] = ""
		row.Columns[colTokenExpiresAt] = time.Time{}

		_, err := s.ts.Update(ctx, row, row.ETag)
		if tablestore.IsConditionFailedError(err) || tablestore.IsNotFoundError(err) {
			// Another recoverer won the race.
			continue
		}
		if err != nil {
			return recovered, s.mapErr(err)
		}

		recovered++
		s.log.WithFields(logrus.Fields{
			"projection": row.Str(colStatusProjection),
			"object":     row.Str(colStatusObjectID),
		}).Warn("recovered stuck projection rebuild")
	}
	return recovered, nil
}

// GetStatus returns the record for (projectionName, objectID), or nil when
// none exists.
func (s *StatusStore) GetStatus(ctx context.Context, projectionName, objectID string) (*ProjectionStatusInfo, error) {
	row, err := s.ts.Get(ctx, statusPartition(projectionName), objectID)
	if tablestore.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, s.mapErr(err)
	}
	info := statusFromRow(row)
	return &info, nil
}

// GetByStatus scans for every record currently in |status|.
func (s *StatusStore) GetByStatus(ctx context.Context, status Status) ([]ProjectionStatusInfo, error) {
	rows, err := tablestore.QueryAll(ctx, s.ts, tablestore.Query{})
	if err != nil {
		if tablestore.IsTableNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []ProjectionStatusInfo
	for _, row := range rows {
		if Status(row.Str(colStatusValue)) != status {
			continue
		}
		out = append(out, statusFromRow(row))
	}
	return out, nil
}

// Disable stops the projection for one object until Enable.
func (s *StatusStore) Disable(ctx context.Context, projectionName, objectID string) error {
	return s.setStatus(ctx, projectionName, objectID, StatusDisabled)
}

// Enable returns a disabled projection to Active.
func (s *StatusStore) Enable(ctx context.Context, projectionName, objectID string) error {
	return s.setStatus(ctx, projectionName, objectID, StatusActive)
}

func (s *StatusStore) setStatus(ctx context.Context, projectionName, objectID string, status Status) error {
	_, err := s.ts.Upsert(ctx, tablestore.Row{
		PartitionKey: statusPartition(projectionName),
		RowKey:       objectID,
		Columns: map[string]any{
			colStatusProjection: projectionName,
			colStatusObjectID:   objectID,
			colStatusValue:      string(status),
			colStatusChangedAt:  s.now().UTC(),
			colStatusSchema:     StatusSchemaVersion,
			colTokenValue:       "",
			colTokenExpiresAt:   time.Time{},
		},
	})
	if err != nil {
		return s.mapErr(err)
	}
	return nil
}

func (s *StatusStore) mapErr(err error) error {
	switch {
	case tablestore.IsTableNotFoundError(err):
		return eventstore.ContainerNotFoundError{Container: s.ts.Path()}
	case tablestore.IsConditionFailedError(err):
		return eventstore.ConcurrencyConflictError{Key: s.ts.Path()}
	}
	return err
}

func statusFromRow(row tablestore.Row) ProjectionStatusInfo {
	info := ProjectionStatusInfo{
		ProjectionName:  row.Str(colStatusProjection),
		ObjectID:        row.Str(colStatusObjectID),
		Status:          Status(row.Str(colStatusValue)),
		StatusChangedAt: row.Time(colStatusChangedAt),
		SchemaVersion:   row.Str(colStatusSchema),
	}
	if strategy := row.Str(colRebuildStrategy); strategy != "" {
		info.Rebuild = &RebuildInfo{
			Strategy:  RebuildStrategy(strategy),
			StartedAt: row.Time(colRebuildStartedAt),
			Error:     row.Str(colRebuildError),
		}
	}
	return info
}
