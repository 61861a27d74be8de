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

package tablestore

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
)

// tableCreateTimeout bounds the wait for a newly created table to go active.
const tableCreateTimeout = 2 * time.Minute

// NewDynamoTableStoreFromEnv resolves AWS credentials and region from the
// default chain (env vars, shared config, instance metadata) and returns a
// TableStore over |table|. When |createTable| is set the table is created
// on demand with the (pk, rk) string key schema.
func NewDynamoTableStoreFromEnv(ctx context.Context, table string, createTable bool) (*DynamoTableStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load aws config")
	}

	client := dynamodb.NewFromConfig(cfg)
	if createTable {
		if err := ensureDynamoTable(ctx, client, table); err != nil {
			return nil, errors.Wrapf(err, "failed to create table %s", table)
		}
	}
	return NewDynamoTableStore(client, table), nil
}

func ensureDynamoTable(ctx context.Context, client *dynamodb.Client, table string) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: ddbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String(pkAttr), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(rkAttr), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(pkAttr), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String(rkAttr), KeyType: ddbtypes.KeyTypeRange},
		},
	})
	if err != nil {
		var exists *ddbtypes.ResourceInUseException
		if errors.As(err, &exists) {
			return nil
		}
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, tableCreateTimeout)
}
