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

// Package blobstore provides the object-store capability the event stores
// are built on: whole-object reads and writes guarded by version
// preconditions, prefix listing with continuation tokens, and access-tier
// control.
package blobstore

import (
	"context"
)

// PreconditionKind selects the condition attached to a write or read.
type PreconditionKind int

const (
	// PreNone performs the operation unconditionally.
	PreNone PreconditionKind = iota

	// PreCreateOnly requires that no blob exists for the key
	// (If-None-Match: "*").
	PreCreateOnly

	// PreMatchVersion requires the blob's current version to equal the
	// supplied version (If-Match).
	PreMatchVersion
)

// Precondition is a substrate-enforced condition on an I/O operation that
// yields a precondition failure instead of a lost update.
type Precondition struct {
	Kind    PreconditionKind
	Version string
}

// None is the unconditional Precondition.
var None = Precondition{}

// CreateOnly returns a Precondition requiring the blob to not exist.
func CreateOnly() Precondition {
	return Precondition{Kind: PreCreateOnly}
}

// MatchVersion returns a Precondition requiring the blob's version to equal
// |version|.
func MatchVersion(version string) Precondition {
	return Precondition{Kind: PreMatchVersion, Version: version}
}

// AccessTier is a storage tier for a blob.
type AccessTier string

const (
	TierHot     AccessTier = "Hot"
	TierCool    AccessTier = "Cool"
	TierArchive AccessTier = "Archive"
)

// RehydratePriority controls how urgently an archived blob is brought back
// to an online tier.
type RehydratePriority string

const (
	RehydrateStandard RehydratePriority = "Standard"
	RehydrateHigh     RehydratePriority = "High"
)

// Properties describes a blob without its content.
type Properties struct {
	Version string
	Size    int64
	Tier    AccessTier
}

// ListPage is one page of keys under a prefix. NextToken is empty on the
// final page.
type ListPage struct {
	Keys      []string
	NextToken string
}

// Blobstore is an interface for storing and retrieving versioned blobs.
// Writes and conditional reads accept a Precondition; a failed precondition
// surfaces as CheckAndPutError rather than a lost update.
type Blobstore interface {
	// Path returns this blobstore's path (i.e. container name + prefix).
	Path() string

	// Exists returns true if a blob keyed by |key| exists.
	Exists(ctx context.Context, key string) (bool, error)

	// GetProperties returns the version and size of the blob keyed by |key|,
	// or NotFound.
	GetProperties(ctx context.Context, key string) (Properties, error)

	// Get returns the content and version of the blob keyed by |key|, or
	// NotFound. A PreMatchVersion precondition turns a concurrent
	// modification into CheckAndPutError.
	Get(ctx context.Context, key string, pre Precondition) ([]byte, string, error)

	// Put writes |data| under |key| subject to |pre| and returns the new
	// version.
	Put(ctx context.Context, key string, data []byte, pre Precondition) (string, error)

	// Delete removes the blob keyed by |key| subject to |pre|. Deleting an
	// absent blob returns NotFound.
	Delete(ctx context.Context, key string, pre Precondition) error

	// List returns a page of keys under |prefix|, resuming from |token|.
	List(ctx context.Context, prefix, token string, pageSize int) (ListPage, error)

	// SetTier moves the blob keyed by |key| to |tier|.
	SetTier(ctx context.Context, key string, tier AccessTier, priority RehydratePriority) error
}
