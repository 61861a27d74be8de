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

package eventstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamIDForObject(t *testing.T) {
	assert.Equal(t, "abc123-0000000000", StreamIDForObject("abc123"))
	assert.Equal(t, "abc123-0000000000", StreamIDForObject("abc-123"))
	assert.Equal(t, "A-0000000000", StreamIDForObject("A"))
}

func TestNewObjectDocument(t *testing.T) {
	doc := NewObjectDocument("Item", "A", DefaultSettings())

	assert.Equal(t, "A", doc.ObjectID)
	assert.Equal(t, "Item", doc.ObjectName)
	assert.Equal(t, "A-0000000000", doc.Active.StreamID)
	assert.Equal(t, -1, doc.Active.CurrentVersion)
	assert.Equal(t, DocumentSchemaVersion, doc.SchemaVersion)
	assert.Empty(t, doc.Active.Chunks)
	require.NoError(t, doc.Validate())
}

func TestNewObjectDocumentChunked(t *testing.T) {
	settings := DefaultSettings()
	settings.ChunkingEnabled = true
	settings.ChunkSize = 500

	doc := NewObjectDocument("Item", "A", settings)
	require.Len(t, doc.Active.Chunks, 1)
	assert.Equal(t, StreamChunk{ChunkID: 0, FirstEventVersion: 0, LastEventVersion: -1}, doc.Active.Chunks[0])
	assert.Equal(t, 500, doc.Active.ChunkSize)
	require.NoError(t, doc.Validate())
}

func TestValidateChunks(t *testing.T) {
	settings := DefaultSettings()
	settings.ChunkingEnabled = true
	doc := NewObjectDocument("Item", "A", settings)

	// Contiguous chunks with a matching tail pass.
	doc.Active.Chunks = []StreamChunk{
		{ChunkID: 0, FirstEventVersion: 0, LastEventVersion: 999},
		{ChunkID: 1, FirstEventVersion: 1000, LastEventVersion: 1499},
	}
	doc.Active.CurrentVersion = 1499
	require.NoError(t, doc.Validate())

	// Gap between chunks.
	doc.Active.Chunks[1].FirstEventVersion = 1001
	require.Error(t, doc.Validate())
	doc.Active.Chunks[1].FirstEventVersion = 1000

	// Tail mismatch.
	doc.Active.CurrentVersion = 1400
	require.Error(t, doc.Validate())

	// Empty tail chunk at the right boundary.
	doc.Active.Chunks = []StreamChunk{
		{ChunkID: 0, FirstEventVersion: 0, LastEventVersion: 999},
		{ChunkID: 1, FirstEventVersion: 1000, LastEventVersion: -1},
	}
	doc.Active.CurrentVersion = 999
	require.NoError(t, doc.Validate())

	// No chunks at all.
	doc.Active.Chunks = nil
	require.Error(t, doc.Validate())
}

func TestStoreNameResolution(t *testing.T) {
	si := StreamInformation{ConnectionName: "legacy"}
	assert.Equal(t, "legacy", si.DataStoreName())
	assert.Equal(t, "legacy", si.DocumentStoreName())
	assert.Equal(t, "legacy", si.SnapshotStoreName())

	si.DataStore = "modern-data"
	si.SnapShotStore = "modern-snap"
	assert.Equal(t, "modern-data", si.DataStoreName())
	assert.Equal(t, "modern-snap", si.SnapshotStoreName())
	assert.Equal(t, "legacy", si.DocumentTagStoreName())
}

func TestChunkFor(t *testing.T) {
	si := StreamInformation{
		ChunkingEnabled: true,
		Chunks: []StreamChunk{
			{ChunkID: 0, FirstEventVersion: 0, LastEventVersion: 9},
			{ChunkID: 1, FirstEventVersion: 10, LastEventVersion: -1},
		},
	}

	c, ok := si.ChunkFor(5)
	require.True(t, ok)
	assert.Equal(t, 0, c.ChunkID)

	c, ok = si.ChunkFor(10)
	require.True(t, ok)
	assert.Equal(t, 1, c.ChunkID)

	// Open tail covers everything above its first version.
	c, ok = si.ChunkFor(5000)
	require.True(t, ok)
	assert.Equal(t, 1, c.ChunkID)
}

func TestHashDocumentStable(t *testing.T) {
	doc := NewObjectDocument("Item", "A", DefaultSettings())

	h1, err := HashDocument(doc)
	require.NoError(t, err)
	h2, err := HashDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	// Hash excludes the chain fields, so a hashed document re-hashes to the
	// same digest.
	doc.Hash = h1
	doc.PrevHash = "something"
	h3, err := HashDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, h1, h3)

	// Content changes change the digest.
	doc.Active.CurrentVersion = 10
	h4, err := HashDocument(doc)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h4)
}

func TestEventIsClosed(t *testing.T) {
	assert.True(t, Event{EventType: ClosedEventType}.IsClosed())
	assert.False(t, Event{EventType: "Created"}.IsClosed())
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.False(t, s.ChunkingEnabled)
	assert.Equal(t, 1000, s.ChunkSize)
	assert.Equal(t, 61440, s.PayloadChunkThresholdBytes)
	assert.Equal(t, 61440, s.MaxPayloadChunkSizeBytes)
	assert.True(t, s.CompressPayloads)
	assert.Equal(t, "default", s.DefaultStore)
}

func TestLoadSettings(t *testing.T) {
	s, err := LoadSettings(strings.NewReader("chunkingEnabled: true\nchunkSize: 250\n"))
	require.NoError(t, err)
	assert.True(t, s.ChunkingEnabled)
	assert.Equal(t, 250, s.ChunkSize)
	// Unset fields fall back to defaults.
	assert.Equal(t, 61440, s.PayloadChunkThresholdBytes)
}

func TestLoadSettingsEmpty(t *testing.T) {
	s, err := LoadSettings(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestEnsureContainer(t *testing.T) {
	ResetVerifiedContainers()
	t.Cleanup(ResetVerifiedContainers)

	ctx := context.Background()
	calls := 0
	create := func(context.Context) error {
		calls++
		return nil
	}

	require.NoError(t, EnsureContainer(ctx, "Events", create))
	require.NoError(t, EnsureContainer(ctx, "Events", create))
	// Case-insensitive membership.
	require.NoError(t, EnsureContainer(ctx, "EVENTS", create))
	assert.Equal(t, 1, calls)
}

func TestEnsureContainerFailureRetries(t *testing.T) {
	ResetVerifiedContainers()
	t.Cleanup(ResetVerifiedContainers)

	ctx := context.Background()
	calls := 0
	create := func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("boom")
		}
		return nil
	}

	require.Error(t, EnsureContainer(ctx, "events", create))
	require.NoError(t, EnsureContainer(ctx, "events", create))
	require.NoError(t, EnsureContainer(ctx, "events", create))
	assert.Equal(t, 2, calls)
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsConcurrencyConflict(ConcurrencyConflictError{Key: "k"}))
	assert.True(t, IsStreamClosed(StreamClosedError{StreamID: "s"}))
	assert.True(t, IsDocumentNotFound(DocumentNotFoundError{ObjectName: "Item", ObjectID: "A"}))
	assert.True(t, IsContainerNotFound(ContainerNotFoundError{Container: "c"}))
	assert.True(t, IsCorruptPayload(CorruptPayloadError{StreamID: "s"}))
	assert.True(t, IsInvalidArgument(InvalidArgumentError{Name: "n"}))
	assert.True(t, IsInvalidToken(InvalidTokenError{ProjectionName: "p"}))
	assert.True(t, IsTokenExpired(TokenExpiredError{ProjectionName: "p"}))
	assert.True(t, IsInvalidToken(TokenExpiredError{ProjectionName: "p"}))
	assert.False(t, IsTokenExpired(InvalidTokenError{ProjectionName: "p"}))

	assert.False(t, IsConcurrencyConflict(errors.New("other")))
	assert.False(t, IsStreamClosed(nil))
}
