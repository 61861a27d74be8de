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
	"fmt"
	"sort"
	"strings"
	"time"
)

// DocumentSchemaVersion is written into every persisted object document.
const DocumentSchemaVersion = "1.0.0"

// StreamChunk describes one horizontal partition of a stream. Chunks form a
// gap-free partition of [0, currentVersion]; LastEventVersion is -1 for an
// empty tail chunk.
type StreamChunk struct {
	ChunkID           int `json:"chunkIdentifier"`
	FirstEventVersion int `json:"firstEventVersion"`
	LastEventVersion  int `json:"lastEventVersion"`
}

// StreamInformation is the active stream pointer of an object document.
//
// Store routing carries both the modern per-concern store names and a legacy
// single connection name. The legacy field is resolved only when the modern
// field is empty and is never written back.
type StreamInformation struct {
	StreamID        string        `json:"streamIdentifier"`
	CurrentVersion  int           `json:"currentStreamVersion"`
	ChunkingEnabled bool          `json:"chunkingEnabled"`
	ChunkSize       int           `json:"chunkSize,omitempty"`
	Chunks          []StreamChunk `json:"chunks,omitempty"`

	DataStore        string `json:"dataStore,omitempty"`
	DocumentStore    string `json:"documentStore,omitempty"`
	DocumentTagStore string `json:"documentTagStore,omitempty"`
	StreamTagStore   string `json:"streamTagStore,omitempty"`
	SnapShotStore    string `json:"snapShotStore,omitempty"`

	// Deprecated: single connection name predating per-concern routing.
	// Input only; resolved when the modern fields above are empty.
	ConnectionName string `json:"connectionName,omitempty"`

	StreamType         string `json:"streamType,omitempty"`
	DocumentType       string `json:"documentType,omitempty"`
	DocumentTagType    string `json:"documentTagType,omitempty"`
	EventStreamTagType string `json:"eventStreamTagType,omitempty"`
	DocumentRefType    string `json:"documentRefType,omitempty"`
}

// DataStoreName resolves the data-store name, falling back to the deprecated
// connection name.
func (si *StreamInformation) DataStoreName() string {
	if si.DataStore != "" {
		return si.DataStore
	}
	return si.ConnectionName
}

// DocumentStoreName resolves the document-store name.
func (si *StreamInformation) DocumentStoreName() string {
	if si.DocumentStore != "" {
		return si.DocumentStore
	}
	return si.ConnectionName
}

// DocumentTagStoreName resolves the document-tag-store name.
func (si *StreamInformation) DocumentTagStoreName() string {
	if si.DocumentTagStore != "" {
		return si.DocumentTagStore
	}
	return si.ConnectionName
}

// StreamTagStoreName resolves the stream-tag-store name.
func (si *StreamInformation) StreamTagStoreName() string {
	if si.StreamTagStore != "" {
		return si.StreamTagStore
	}
	return si.ConnectionName
}

// SnapshotStoreName resolves the snapshot-store name.
func (si *StreamInformation) SnapshotStoreName() string {
	if si.SnapShotStore != "" {
		return si.SnapShotStore
	}
	return si.ConnectionName
}

// CurrentChunk returns the tail chunk. ok is false when chunking is disabled
// or no chunks exist.
func (si *StreamInformation) CurrentChunk() (StreamChunk, bool) {
	if !si.ChunkingEnabled || len(si.Chunks) == 0 {
		return StreamChunk{}, false
	}
	return si.Chunks[len(si.Chunks)-1], true
}

// ChunkFor returns the chunk covering |version|. ok is false when chunking is
// disabled or no chunk covers the version.
func (si *StreamInformation) ChunkFor(version int) (StreamChunk, bool) {
	if !si.ChunkingEnabled {
		return StreamChunk{}, false
	}
	for _, c := range si.Chunks {
		if version >= c.FirstEventVersion && (c.LastEventVersion == -1 || version <= c.LastEventVersion) {
			return c, true
		}
	}
	return StreamChunk{}, false
}

// TerminatedStream records a closed stream on the object document, with an
// optional continuation stream for future appends.
type TerminatedStream struct {
	StreamID             string     `json:"streamIdentifier"`
	Reason               string     `json:"reason,omitempty"`
	ContinuationStreamID string     `json:"continuationStreamIdentifier,omitempty"`
	TerminatedAt         time.Time  `json:"terminationDate"`
	Version              int        `json:"version"`
	Deleted              bool       `json:"deleted,omitempty"`
	DeletedAt            *time.Time `json:"deletionDate,omitempty"`
}

// ObjectDocument is the per-aggregate descriptor: the active stream pointer,
// the termination history and the hash chain that detects lost updates.
//
// Hash is a SHA-256 digest of the canonically serialized document; PrevHash
// links to the prior committed version. DocumentPath and ETag are runtime
// annotations, never persisted.
type ObjectDocument struct {
	ObjectID          string             `json:"objectId"`
	ObjectName        string             `json:"objectName"`
	Active            StreamInformation  `json:"active"`
	TerminatedStreams []TerminatedStream `json:"terminatedStreams,omitempty"`
	SchemaVersion     string             `json:"schemaVersion"`
	Hash              string             `json:"hash,omitempty"`
	PrevHash          string             `json:"prevHash,omitempty"`

	DocumentPath string `json:"-"`
	ETag         string `json:"-"`
}

// StreamIDForObject derives the initial stream identifier for an object:
// the object id with dashes stripped, suffixed with generation zero.
func StreamIDForObject(objectID string) string {
	return strings.ReplaceAll(objectID, "-", "") + "-0000000000"
}

// NewObjectDocument returns a freshly initialized document for |objectID|
// with an empty stream at version -1. When chunking is enabled in |settings|
// the stream starts with a single empty tail chunk.
func NewObjectDocument(objectName, objectID string, settings Settings) *ObjectDocument {
	active := StreamInformation{
		StreamID:        StreamIDForObject(objectID),
		CurrentVersion:  -1,
		ChunkingEnabled: settings.ChunkingEnabled,
		ChunkSize:       settings.ChunkSize,
	}
	if settings.ChunkingEnabled {
		active.Chunks = []StreamChunk{{ChunkID: 0, FirstEventVersion: 0, LastEventVersion: -1}}
	}
	return &ObjectDocument{
		ObjectID:      objectID,
		ObjectName:    objectName,
		Active:        active,
		SchemaVersion: DocumentSchemaVersion,
	}
}

// Validate enforces the invariants checked before a document is persisted.
func (doc *ObjectDocument) Validate() error {
	if doc.ObjectID == "" {
		return InvalidArgumentError{Name: "objectId", Reason: "must not be empty"}
	}
	if doc.ObjectName == "" {
		return InvalidArgumentError{Name: "objectName", Reason: "must not be empty"}
	}
	if doc.Active.CurrentVersion < -1 {
		return InvalidArgumentError{
			Name:   "active.currentStreamVersion",
			Reason: fmt.Sprintf("must be >= -1, got %d", doc.Active.CurrentVersion),
		}
	}
	if doc.Active.ChunkingEnabled {
		return validateChunks(doc.Active)
	}
	return nil
}

func validateChunks(si StreamInformation) error {
	if len(si.Chunks) == 0 {
		return InvalidArgumentError{Name: "active.chunks", Reason: "chunking enabled but no chunks present"}
	}
	if !sort.SliceIsSorted(si.Chunks, func(i, j int) bool {
		return si.Chunks[i].ChunkID < si.Chunks[j].ChunkID
	}) {
		return InvalidArgumentError{Name: "active.chunks", Reason: "chunks not sorted by chunk id"}
	}
	for i := 1; i < len(si.Chunks); i++ {
		prev, cur := si.Chunks[i-1], si.Chunks[i]
		if cur.FirstEventVersion != prev.LastEventVersion+1 {
			return InvalidArgumentError{
				Name: "active.chunks",
				Reason: fmt.Sprintf("chunk %d starts at version %d, expected %d",
					cur.ChunkID, cur.FirstEventVersion, prev.LastEventVersion+1),
			}
		}
	}
	last := si.Chunks[len(si.Chunks)-1]
	if last.LastEventVersion != si.CurrentVersion && !(last.LastEventVersion == -1 && si.CurrentVersion == last.FirstEventVersion-1) {
		return InvalidArgumentError{
			Name: "active.chunks",
			Reason: fmt.Sprintf("tail chunk ends at version %d but stream is at version %d",
				last.LastEventVersion, si.CurrentVersion),
		}
	}
	return nil
}
