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
	"errors"
	"io"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

var _ Blobstore = &AzureBlobstore{}

// AzureBlobstore is a Blobstore backed by an Azure blob container.
type AzureBlobstore struct {
	azClient      *azblob.Client
	containerName string
	prefix        string
}

// NewAzureBlobstore creates a new instance of an AzureBlobstore
func NewAzureBlobstore(client *azblob.Client, containerName, prefix string) *AzureBlobstore {
	// Remove leading slashes from prefix
	prefix = normalizeAzPrefix(prefix)

	return &AzureBlobstore{
		azClient:      client,
		containerName: containerName,
		prefix:        prefix,
	}
}

// normalizeAzPrefix removes leading slashes from a prefix
func normalizeAzPrefix(prefix string) string {
	for len(prefix) > 0 && prefix[0] == '/' {
		prefix = prefix[1:]
	}
	return prefix
}

// Path returns this blobstore's path (i.e. container name + prefix)
func (bs *AzureBlobstore) Path() string {
	return path.Join(bs.containerName, bs.prefix)
}

// absKey returns the absolute key for a blob (prefix + key)
func (bs *AzureBlobstore) absKey(key string) string {
	return path.Join(bs.prefix, key)
}

func (bs *AzureBlobstore) blobClient(absKey string) *blob.Client {
	return bs.azClient.ServiceClient().NewContainerClient(bs.containerName).NewBlobClient(absKey)
}

// CreateContainer creates the backing container if it does not already exist.
// Meant to be driven through eventstore.EnsureContainer at construction time.
func (bs *AzureBlobstore) CreateContainer(ctx context.Context) error {
	_, err := bs.azClient.CreateContainer(ctx, bs.containerName, nil)
	if err != nil && !azErrorHasStatus(err, 409) {
		return err
	}
	return nil
}

// Exists returns true if a blob keyed by |key| exists
func (bs *AzureBlobstore) Exists(ctx context.Context, key string) (bool, error) {
	absKey := bs.absKey(key)

	_, err := bs.blobClient(absKey).GetProperties(ctx, nil)
	if err != nil {
		if isBlobNotFoundError(err) {
			return false, nil
		}
		return false, bs.errOrNotFound(err, absKey)
	}

	return true, nil
}

// GetProperties returns the ETag, size and tier of a blob
func (bs *AzureBlobstore) GetProperties(ctx context.Context, key string) (Properties, error) {
	absKey := bs.absKey(key)

	props, err := bs.blobClient(absKey).GetProperties(ctx, nil)
	if err != nil {
		return Properties{}, bs.errOrNotFound(err, absKey)
	}

	p := Properties{Version: etagToString(props.ETag)}
	if props.ContentLength != nil {
		p.Size = *props.ContentLength
	}
	if props.AccessTier != nil {
		p.Tier = AccessTier(*props.AccessTier)
	}
	return p, nil
}

// Get retrieves the content of a blob along with its version (ETag)
func (bs *AzureBlobstore) Get(ctx context.Context, key string, pre Precondition) ([]byte, string, error) {
	absKey := bs.absKey(key)

	var downloadOptions *azblob.DownloadStreamOptions
	if ac := accessConditions(pre); ac != nil {
		downloadOptions = &azblob.DownloadStreamOptions{AccessConditions: ac}
	}

	resp, err := bs.azClient.DownloadStream(ctx, bs.containerName, absKey, downloadOptions)
	if err != nil {
		if blobHasChanged(pre, err) {
			return nil, "", CheckAndPutError{key, pre.Version, bs.getCurrentVersion(ctx, absKey)}
		}
		return nil, "", bs.errOrNotFound(err, absKey)
	}

	data, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return nil, "", err
	}
	if closeErr != nil {
		return nil, "", closeErr
	}

	return data, etagToString(resp.ETag), nil
}

// Put writes |data| keyed by |key| using the precondition's ETag semantics
func (bs *AzureBlobstore) Put(ctx context.Context, key string, data []byte, pre Precondition) (string, error) {
	absKey := bs.absKey(key)

	var uploadOptions *azblob.UploadBufferOptions
	if ac := accessConditions(pre); ac != nil {
		uploadOptions = &azblob.UploadBufferOptions{AccessConditions: ac}
	}

	resp, err := bs.azClient.UploadBuffer(ctx, bs.containerName, absKey, data, uploadOptions)
	if err != nil {
		if blobExistsWhenShouldnt(pre, err) || blobHasChanged(pre, err) {
			// Get the current version to return in the error
			actualVersion := bs.getCurrentVersion(ctx, absKey)
			return "", CheckAndPutError{key, pre.Version, actualVersion}
		}
		return "", bs.errOrNotFound(err, absKey)
	}

	return etagToString(resp.ETag), nil
}

// Delete removes the blob keyed by |key|
func (bs *AzureBlobstore) Delete(ctx context.Context, key string, pre Precondition) error {
	absKey := bs.absKey(key)

	var deleteOptions *azblob.DeleteBlobOptions
	if ac := accessConditions(pre); ac != nil {
		deleteOptions = &azblob.DeleteBlobOptions{AccessConditions: ac}
	}

	_, err := bs.azClient.DeleteBlob(ctx, bs.containerName, absKey, deleteOptions)
	if err != nil {
		if blobHasChanged(pre, err) {
			return CheckAndPutError{key, pre.Version, bs.getCurrentVersion(ctx, absKey)}
		}
		return bs.errOrNotFound(err, absKey)
	}
	return nil
}

// List returns a page of blob keys under |prefix| using the service's native
// continuation marker.
func (bs *AzureBlobstore) List(ctx context.Context, prefix, token string, pageSize int) (ListPage, error) {
	absPrefix := bs.absKey(prefix)

	opts := &azblob.ListBlobsFlatOptions{Prefix: &absPrefix}
	if token != "" {
		opts.Marker = &token
	}
	if pageSize > 0 {
		opts.MaxResults = to.Ptr(int32(pageSize))
	}

	pager := bs.azClient.NewListBlobsFlatPager(bs.containerName, opts)
	if !pager.More() {
		return ListPage{}, nil
	}

	resp, err := pager.NextPage(ctx)
	if err != nil {
		if isContainerNotFoundError(err) {
			return ListPage{}, ContainerNotFound{bs.containerName}
		}
		return ListPage{}, err
	}

	var page ListPage
	for _, item := range resp.Segment.BlobItems {
		if item.Name == nil {
			continue
		}
		// Make keys relative to the store's prefix again.
		page.Keys = append(page.Keys, strings.TrimPrefix(strings.TrimPrefix(*item.Name, bs.prefix), "/"))
	}
	if resp.NextMarker != nil && *resp.NextMarker != "" {
		page.NextToken = *resp.NextMarker
	}
	return page, nil
}

// SetTier moves the blob keyed by |key| to |tier|
func (bs *AzureBlobstore) SetTier(ctx context.Context, key string, tier AccessTier, priority RehydratePriority) error {
	absKey := bs.absKey(key)

	opts := &blob.SetTierOptions{}
	switch priority {
	case RehydrateHigh:
		opts.RehydratePriority = to.Ptr(blob.RehydratePriorityHigh)
	case RehydrateStandard:
		opts.RehydratePriority = to.Ptr(blob.RehydratePriorityStandard)
	}

	_, err := bs.blobClient(absKey).SetTier(ctx, blob.AccessTier(tier), opts)
	if err != nil {
		return bs.errOrNotFound(err, absKey)
	}
	return nil
}

// accessConditions maps a Precondition to Azure access conditions. Returns
// nil for the unconditional case.
func accessConditions(pre Precondition) *blob.AccessConditions {
	switch pre.Kind {
	case PreCreateOnly:
		// Blob should not exist - use If-None-Match: "*"
		return &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfNoneMatch: to.Ptr(azcore.ETagAny),
			},
		}
	case PreMatchVersion:
		// Blob should exist - use If-Match with the expected ETag
		etag := azcore.ETag(pre.Version)
		return &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfMatch: &etag,
			},
		}
	}
	return nil
}

// isBlobNotFoundError checks if an error indicates a blob doesn't exist
func isBlobNotFoundError(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 404 && respErr.ErrorCode != "ContainerNotFound"
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "BlobNotFound")
}

// isContainerNotFoundError checks if an error indicates the container itself
// doesn't exist
func isContainerNotFoundError(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.ErrorCode == "ContainerNotFound"
	}

	return strings.Contains(err.Error(), "ContainerNotFound")
}

// errOrNotFound converts Azure errors to NotFound errors when appropriate
func (bs *AzureBlobstore) errOrNotFound(err error, absKey string) error {
	if isContainerNotFoundError(err) {
		return ContainerNotFound{bs.containerName}
	}
	if isBlobNotFoundError(err) {
		return NotFound{path.Join(bs.containerName, absKey)}
	}
	return err
}

// blobExistsWhenShouldnt checks if error indicates blob exists when it shouldn't (409)
func blobExistsWhenShouldnt(pre Precondition, err error) bool {
	return pre.Kind == PreCreateOnly && azErrorHasStatus(err, 409)
}

// blobHasChanged checks if error indicates blob version has changed (412)
func blobHasChanged(pre Precondition, err error) bool {
	return pre.Kind == PreMatchVersion && azErrorHasStatus(err, 412)
}

func azErrorHasStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == status
	}
	return false
}

// getCurrentVersion gets the current version (ETag) of a blob
func (bs *AzureBlobstore) getCurrentVersion(ctx context.Context, absKey string) string {
	props, err := bs.blobClient(absKey).GetProperties(ctx, nil)
	if err != nil {
		return "unknown"
	}
	return etagToString(props.ETag)
}

// etagToString converts an ETag pointer to a string
func etagToString(etag *azcore.ETag) string {
	if etag == nil {
		return ""
	}
	return string(*etag)
}
