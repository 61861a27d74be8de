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

package blobstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// InMemoryBlobstore provides an in memory implementation of the Blobstore interface
type InMemoryBlobstore struct {
	path     string
	mutex    sync.RWMutex
	blobs    map[string][]byte
	versions map[string]string
	tiers    map[string]AccessTier
}

var _ Blobstore = &InMemoryBlobstore{}

// NewInMemoryBlobstore creates an instance of an InMemoryBlobstore
func NewInMemoryBlobstore(path string) *InMemoryBlobstore {
	return &InMemoryBlobstore{
		path:     path,
		blobs:    make(map[string][]byte),
		versions: make(map[string]string),
		tiers:    make(map[string]AccessTier),
	}
}

func (bs *InMemoryBlobstore) Path() string {
	return bs.path
}

// Exists returns true if a blob exists for the given key, and false if it does not.
// For InMemoryBlobstore instances error should never be returned (though other
// implementations of this interface can)
func (bs *InMemoryBlobstore) Exists(ctx context.Context, key string) (bool, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	_, ok := bs.blobs[key]
	return ok, nil
}

// GetProperties returns the version, size and tier of the blob for a key.
func (bs *InMemoryBlobstore) GetProperties(ctx context.Context, key string) (Properties, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	val, ok := bs.blobs[key]
	if !ok {
		return Properties{}, NotFound{key}
	}
	tier := bs.tiers[key]
	if tier == "" {
		tier = TierHot
	}
	return Properties{Version: bs.versions[key], Size: int64(len(val)), Tier: tier}, nil
}

// Get retrieves the content of a blob along with its version.
func (bs *InMemoryBlobstore) Get(ctx context.Context, key string, pre Precondition) ([]byte, string, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	val, ok := bs.blobs[key]
	if !ok {
		return nil, "", NotFound{key}
	}
	ver := bs.versions[key]
	if pre.Kind == PreMatchVersion && pre.Version != ver {
		return nil, "", CheckAndPutError{key, pre.Version, ver}
	}

	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, ver, nil
}

// Put will check the current version of a blob against the precondition, and if
// it holds it will update the data and version associated with the key
func (bs *InMemoryBlobstore) Put(ctx context.Context, key string, data []byte, pre Precondition) (string, error) {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	ver, ok := bs.versions[key]
	switch pre.Kind {
	case PreCreateOnly:
		if ok {
			return "", CheckAndPutError{key, "", ver}
		}
	case PreMatchVersion:
		if !ok || pre.Version != ver {
			return "", CheckAndPutError{key, pre.Version, ver}
		}
	}
	return bs.put(key, data), nil
}

// Delete removes the blob and version associated with a key.
func (bs *InMemoryBlobstore) Delete(ctx context.Context, key string, pre Precondition) error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	ver, ok := bs.versions[key]
	if !ok {
		return NotFound{key}
	}
	if pre.Kind == PreMatchVersion && pre.Version != ver {
		return CheckAndPutError{key, pre.Version, ver}
	}

	delete(bs.blobs, key)
	delete(bs.versions, key)
	delete(bs.tiers, key)
	return nil
}

// List returns a page of keys under prefix in lexicographic order. The
// continuation token is the last key of the previous page.
func (bs *InMemoryBlobstore) List(ctx context.Context, prefix, token string, pageSize int) (ListPage, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	var keys []string
	for k := range bs.blobs {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var page ListPage
	if pageSize > 0 && len(keys) > pageSize {
		page.Keys = keys[:pageSize]
		page.NextToken = keys[pageSize-1]
	} else {
		page.Keys = keys
	}
	return page, nil
}

// SetTier records the access tier for a key.
func (bs *InMemoryBlobstore) SetTier(ctx context.Context, key string, tier AccessTier, priority RehydratePriority) error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if _, ok := bs.blobs[key]; !ok {
		return NotFound{key}
	}
	bs.tiers[key] = tier
	return nil
}

func (bs *InMemoryBlobstore) put(key string, data []byte) string {
	ver := uuid.New().String()

	cp := make([]byte, len(data))
	copy(cp, data)

	bs.blobs[key] = cp
	bs.versions[key] = ver
	return ver
}
