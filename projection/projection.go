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

// Package projection provides the checkpoint store and the rebuild
// coordinator for projections. Checkpoints are chunked, compressed, and
// addressed by a content fingerprint; rebuilds are leased through expiring
// tokens with a small CAS-guarded state machine.
package projection

import (
	"time"
)

// StatusSchemaVersion is written into every persisted status record.
const StatusSchemaVersion = "1.0.0"

// Status is the lifecycle state of a projection for one object.
type Status string

const (
	StatusActive     Status = "Active"
	StatusRebuilding Status = "Rebuilding"
	StatusCatchingUp Status = "CatchingUp"
	StatusReady      Status = "Ready"
	StatusFailed     Status = "Failed"
	StatusDisabled   Status = "Disabled"
)

// RebuildStrategy selects how a rebuild replays history.
type RebuildStrategy string

const (
	RebuildFull        RebuildStrategy = "Full"
	RebuildIncremental RebuildStrategy = "Incremental"
)

// RebuildToken leases ownership of one rebuild. The holder presents it on
// every transition until CompleteRebuild or CancelRebuild, or until it
// expires and a recoverer claims the record.
type RebuildToken struct {
	ProjectionName string
	ObjectID       string
	Token          string
	Strategy       RebuildStrategy
	StartedAt      time.Time
	ExpiresAt      time.Time
}

// IsExpired reports whether the lease has lapsed at |now|.
func (t RebuildToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// RebuildInfo describes the rebuild recorded on a status record.
type RebuildInfo struct {
	Strategy  RebuildStrategy
	StartedAt time.Time
	Error     string
}

// ProjectionStatusInfo is the persisted status of a projection for one
// object.
type ProjectionStatusInfo struct {
	ProjectionName  string
	ObjectID        string
	Status          Status
	StatusChangedAt time.Time
	SchemaVersion   string
	Rebuild         *RebuildInfo
}
