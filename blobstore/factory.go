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

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/pkg/errors"
)

// NewAzureBlobstoreFromConnectionString dials an Azure storage account with a
// shared-key connection string and returns a Blobstore over |containerName|.
// When |createContainer| is set the container is created if it does not exist.
func NewAzureBlobstoreFromConnectionString(ctx context.Context, connectionString, containerName, prefix string, createContainer bool) (*AzureBlobstore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create azure blob client")
	}

	bs := NewAzureBlobstore(client, containerName, prefix)
	if createContainer {
		if err := bs.CreateContainer(ctx); err != nil {
			return nil, errors.Wrapf(err, "failed to create container %s", containerName)
		}
	}
	return bs, nil
}
