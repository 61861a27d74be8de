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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/eventstore"
	"github.com/dolthub/eventstore/tablestore"
)

func newStatusStore(t *testing.T) *StatusStore {
	t.Helper()
	return NewStatusStore(tablestore.NewInMemoryTableStore("projections"), nil)
}

func TestRebuildHappyPath(t *testing.T) {
	ctx := context.Background()
	s := newStatusStore(t)

	token, err := s.StartRebuild(ctx, "P", "A", RebuildFull, 5*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	info, err := s.GetStatus(ctx, "P", "A")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, StatusRebuilding, info.Status)
	require.NotNil(t, info.Rebuild)
	assert.Equal(t, RebuildFull, info.Rebuild.Strategy)

	require.NoError(t, s.StartCatchUp(ctx, token))
	info, _ = s.GetStatus(ctx, "P", "A")
	assert.Equal(t, StatusCatchingUp, info.Status)

	require.NoError(t, s.MarkReady(ctx, token))
	info, _ = s.GetStatus(ctx, "P", "A")
	assert.Equal(t, StatusReady, info.Status)

	require.NoError(t, s.CompleteRebuild(ctx, token))
	info, err = s.GetStatus(ctx, "P", "A")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, info.Status)

	// The lease is released: the old token no longer authorizes anything.
	err = s.StartCatchUp(ctx, token)
	assert.True(t, eventstore.IsInvalidToken(err))
}

func TestWrongTokenRejected(t *testing.T) {
	ctx := context.Background()
	s := newStatusStore(t)

	token, err := s.StartRebuild(ctx, "P", "A", RebuildFull, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, s.StartCatchUp(ctx, token))

	impostor := token
	impostor.Token = "someone-else"
	assert.True(t, eventstore.IsInvalidToken(s.MarkReady(ctx, impostor)))

	// The rightful holder still proceeds.
	require.NoError(t, s.MarkReady(ctx, token))
}

func TestExpiredTokenRejected(t *testing.T) {
	ctx := context.Background()
	s := newStatusStore(t)

	token, err := s.StartRebuild(ctx, "P", "A", RebuildFull, time.Minute)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	err = s.StartCatchUp(ctx, token)
	assert.True(t, eventstore.IsTokenExpired(err))
	assert.True(t, eventstore.IsInvalidToken(err))
}

func TestLastWriterWinsOnStart(t *testing.T) {
	ctx := context.Background()
	s := newStatusStore(t)

	t1, err := s.StartRebuild(ctx, "P", "A", RebuildFull, time.Minute)
	require.NoError(t, err)
	t2, err := s.StartRebuild(ctx, "P", "A", RebuildFull, time.Minute)
	require.NoError(t, err)

	// The second starter holds the lease; the first lost it.
	assert.True(t, eventstore.IsInvalidToken(s.StartCatchUp(ctx, t1)))
	require.NoError(t, s.StartCatchUp(ctx, t2))
}

func TestCancelRebuild(t *testing.T) {
	ctx := context.Background()
	s := newStatusStore(t)

	token, err := s.StartRebuild(ctx, "P", "A", RebuildFull, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.CancelRebuild(ctx, token, nil))

	info, err := s.GetStatus(ctx, "P", "A")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, info.Status)

	token, err = s.StartRebuild(ctx, "P", "A", RebuildFull, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.CancelRebuild(ctx, token, errors.New("projector crashed")))

	info, err = s.GetStatus(ctx, "P", "A")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, info.Status)
	require.NotNil(t, info.Rebuild)
	assert.Equal(t, "projector crashed", info.Rebuild.Error)
}

func TestRecoverStuckRebuilds(t *testing.T) {
	ctx := context.Background()
	s := newStatusStore(t)

	_, err := s.StartRebuild(ctx, "P", "A", RebuildFull, time.Millisecond)
	require.NoError(t, err)
	// Healthy rebuild that must not be touched.
	_, err = s.StartRebuild(ctx, "P", "B", RebuildFull, time.Hour)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(time.Minute) }

	recovered, err := s.RecoverStuckRebuilds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	info, err := s.GetStatus(ctx, "P", "A")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, info.Status)
	require.NotNil(t, info.Rebuild)
	assert.Equal(t, "Rebuild timed out", info.Rebuild.Error)

	infoB, err := s.GetStatus(ctx, "P", "B")
	require.NoError(t, err)
	assert.Equal(t, StatusRebuilding, infoB.Status)

	// Idempotent: nothing newly expired.
	recovered, err = s.RecoverStuckRebuilds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
}

func TestGetByStatus(t *testing.T) {
	ctx := context.Background()
	s := newStatusStore(t)

	_, err := s.StartRebuild(ctx, "P", "A", RebuildFull, time.Minute)
	require.NoError(t, err)
	_, err = s.StartRebuild(ctx, "P", "B", RebuildIncremental, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Disable(ctx, "P", "C"))

	rebuilding, err := s.GetByStatus(ctx, StatusRebuilding)
	require.NoError(t, err)
	assert.Len(t, rebuilding, 2)

	disabled, err := s.GetByStatus(ctx, StatusDisabled)
	require.NoError(t, err)
	require.Len(t, disabled, 1)
	assert.Equal(t, "C", disabled[0].ObjectID)
}

func TestDisableEnable(t *testing.T) {
	ctx := context.Background()
	s := newStatusStore(t)

	require.NoError(t, s.Disable(ctx, "P", "A"))
	info, err := s.GetStatus(ctx, "P", "A")
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, info.Status)

	require.NoError(t, s.Enable(ctx, "P", "A"))
	info, err = s.GetStatus(ctx, "P", "A")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, info.Status)
}

func TestGetStatusAbsent(t *testing.T) {
	ctx := context.Background()
	s := newStatusStore(t)

	info, err := s.GetStatus(ctx, "P", "missing")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestStartRebuildValidation(t *testing.T) {
	ctx := context.Background()
	s := newStatusStore(t)

	_, err := s.StartRebuild(ctx, "", "A", RebuildFull, time.Minute)
	assert.True(t, eventstore.IsInvalidArgument(err))
	_, err = s.StartRebuild(ctx, "P", "A", RebuildFull, 0)
	assert.True(t, eventstore.IsInvalidArgument(err))
}

func TestTokenExpiry(t *testing.T) {
	now := time.Now()
	token := RebuildToken{ExpiresAt: now.Add(time.Second)}
	assert.False(t, token.IsExpired(now))
	assert.True(t, token.IsExpired(now.Add(time.Second)))
	assert.True(t, token.IsExpired(now.Add(time.Hour)))
}
