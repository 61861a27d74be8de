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
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// Attribute names of the composite primary key and the version tag.
// DynamoDB has no ETags; the store maintains |verAttr| itself and enforces
// conditional writes against it.
const (
	pkAttr  = "pk"
	rkAttr  = "rk"
	verAttr = "ver"
)

type ddbClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoTableStore is a TableStore backed by a DynamoDB table whose primary
// key is the (pk, rk) string pair.
type DynamoTableStore struct {
	table  string
	ddbsvc ddbClient
}

var _ TableStore = &DynamoTableStore{}

// NewDynamoTableStore creates a new instance of a DynamoTableStore
func NewDynamoTableStore(client *dynamodb.Client, table string) *DynamoTableStore {
	return &DynamoTableStore{table: table, ddbsvc: client}
}

func (ts *DynamoTableStore) Path() string {
	return ts.table
}

// Get returns the row addressed by (pk, rk), or NotFound.
func (ts *DynamoTableStore) Get(ctx context.Context, pk, rk string) (Row, error) {
	result, err := ts.ddbsvc.GetItem(ctx, &dynamodb.GetItemInput{
		ConsistentRead: aws.Bool(true),
		TableName:      aws.String(ts.table),
		Key:            ddbKey(pk, rk),
	})
	if err != nil {
		return Row{}, ts.mapErr(err)
	}
	if len(result.Item) == 0 {
		return Row{}, NotFound{pk, rk}
	}
	return rowFromItem(result.Item), nil
}

// Query returns one page of rows for |q|. Within a partition the native
// ExclusiveStartKey/LastEvaluatedKey pair drives pagination; an empty
// partition key falls back to a table scan.
func (ts *DynamoTableStore) Query(ctx context.Context, q Query) (Page, error) {
	if q.PartitionKey == "" {
		return ts.scan(ctx, q)
	}

	keyExpr := pkAttr + " = :pk"
	vals := map[string]ddbtypes.AttributeValue{
		":pk": &ddbtypes.AttributeValueMemberS{Value: q.PartitionKey},
	}
	switch {
	case q.RowKeyGE != "" && q.RowKeyLE != "":
		keyExpr += " AND " + rkAttr + " BETWEEN :lo AND :hi"
		vals[":lo"] = &ddbtypes.AttributeValueMemberS{Value: q.RowKeyGE}
		vals[":hi"] = &ddbtypes.AttributeValueMemberS{Value: q.RowKeyLE}
	case q.RowKeyGE != "":
		keyExpr += " AND " + rkAttr + " >= :lo"
		vals[":lo"] = &ddbtypes.AttributeValueMemberS{Value: q.RowKeyGE}
	case q.RowKeyLE != "":
		keyExpr += " AND " + rkAttr + " <= :hi"
		vals[":hi"] = &ddbtypes.AttributeValueMemberS{Value: q.RowKeyLE}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(ts.table),
		ConsistentRead:            aws.Bool(true),
		KeyConditionExpression:    aws.String(keyExpr),
		ExpressionAttributeValues: vals,
		ScanIndexForward:          aws.Bool(!q.Descending),
	}
	if q.PageSize > 0 {
		input.Limit = aws.Int32(int32(q.PageSize))
	}
	if q.Token != "" {
		input.ExclusiveStartKey = ddbKey(q.PartitionKey, q.Token)
	}
	applyProjection(q.Select, &input.ProjectionExpression, &input.ExpressionAttributeNames)

	result, err := ts.ddbsvc.Query(ctx, input)
	if err != nil {
		return Page{}, ts.mapErr(err)
	}

	page := Page{}
	for _, item := range result.Items {
		page.Rows = append(page.Rows, rowFromItem(item))
	}
	if lek := result.LastEvaluatedKey; len(lek) > 0 {
		if rk, ok := lek[rkAttr].(*ddbtypes.AttributeValueMemberS); ok {
			page.NextToken = rk.Value
		}
	}
	return page, nil
}

func (ts *DynamoTableStore) scan(ctx context.Context, q Query) (Page, error) {
	input := &dynamodb.ScanInput{
		TableName:      aws.String(ts.table),
		ConsistentRead: aws.Bool(true),
	}
	if q.PageSize > 0 {
		input.Limit = aws.Int32(int32(q.PageSize))
	}
	if q.Token != "" {
		pk, rk, err := splitToken(q.Token)
		if err != nil {
			return Page{}, err
		}
		input.ExclusiveStartKey = ddbKey(pk, rk)
	}
	applyProjection(q.Select, &input.ProjectionExpression, &input.ExpressionAttributeNames)

	result, err := ts.ddbsvc.Scan(ctx, input)
	if err != nil {
		return Page{}, ts.mapErr(err)
	}

	page := Page{}
	for _, item := range result.Items {
		row := rowFromItem(item)
		if q.RowKeyGE != "" && row.RowKey < q.RowKeyGE {
			continue
		}
		if q.RowKeyLE != "" && row.RowKey > q.RowKeyLE {
			continue
		}
		page.Rows = append(page.Rows, row)
	}
	if lek := result.LastEvaluatedKey; len(lek) > 0 {
		pk, _ := lek[pkAttr].(*ddbtypes.AttributeValueMemberS)
		rk, _ := lek[rkAttr].(*ddbtypes.AttributeValueMemberS)
		if pk != nil && rk != nil {
			page.NextToken = joinToken(pk.Value, rk.Value)
		}
	}
	return page, nil
}

// Insert writes a row that must not already exist.
func (ts *DynamoTableStore) Insert(ctx context.Context, row Row) (string, error) {
	item, ver := itemFromRow(row)
	_, err := ts.ddbsvc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(ts.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(" + pkAttr + ")"),
	})
	if err != nil {
		if errIsConditionalCheckFailed(err) {
			return "", EntityExists{row.PartitionKey, row.RowKey}
		}
		return "", ts.mapErr(err)
	}
	return ver, nil
}

// Upsert writes a row unconditionally.
func (ts *DynamoTableStore) Upsert(ctx context.Context, row Row) (string, error) {
	item, ver := itemFromRow(row)
	_, err := ts.ddbsvc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ts.table),
		Item:      item,
	})
	if err != nil {
		return "", ts.mapErr(err)
	}
	return ver, nil
}

// Update replaces a row whose current version must equal |etag|.
func (ts *DynamoTableStore) Update(ctx context.Context, row Row, etag string) (string, error) {
	item, ver := itemFromRow(row)
	_, err := ts.ddbsvc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(ts.table),
		Item:                item,
		ConditionExpression: aws.String(verAttr + " = :prev"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":prev": &ddbtypes.AttributeValueMemberS{Value: etag},
		},
	})
	if err != nil {
		if errIsConditionalCheckFailed(err) {
			return "", ConditionFailed{row.PartitionKey, row.RowKey, etag, ts.currentVersion(ctx, row.PartitionKey, row.RowKey)}
		}
		return "", ts.mapErr(err)
	}
	return ver, nil
}

// Delete removes the row addressed by (pk, rk), conditionally when |etag| is
// non-empty. DynamoDB deletes are blind, so ALL_OLD return values distinguish
// an absent row.
func (ts *DynamoTableStore) Delete(ctx context.Context, pk, rk, etag string) error {
	input := &dynamodb.DeleteItemInput{
		TableName:    aws.String(ts.table),
		Key:          ddbKey(pk, rk),
		ReturnValues: ddbtypes.ReturnValueAllOld,
	}
	if etag != "" {
		input.ConditionExpression = aws.String(verAttr + " = :prev")
		input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
			":prev": &ddbtypes.AttributeValueMemberS{Value: etag},
		}
	}

	result, err := ts.ddbsvc.DeleteItem(ctx, input)
	if err != nil {
		if errIsConditionalCheckFailed(err) {
			return ConditionFailed{pk, rk, etag, ts.currentVersion(ctx, pk, rk)}
		}
		return ts.mapErr(err)
	}
	if len(result.Attributes) == 0 {
		return NotFound{pk, rk}
	}
	return nil
}

// SubmitBatch applies the operations as a single TransactWriteItems call.
func (ts *DynamoTableStore) SubmitBatch(ctx context.Context, ops []BatchOperation) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > MaxBatchSize {
		return fmt.Errorf("batch of %d operations exceeds the maximum of %d", len(ops), MaxBatchSize)
	}

	pk := ops[0].Row.PartitionKey
	items := make([]ddbtypes.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		if op.Row.PartitionKey != pk {
			return fmt.Errorf("batch spans partitions %q and %q", pk, op.Row.PartitionKey)
		}
		switch op.Op {
		case OpInsert:
			item, _ := itemFromRow(op.Row)
			items = append(items, ddbtypes.TransactWriteItem{Put: &ddbtypes.Put{
				TableName:           aws.String(ts.table),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(" + pkAttr + ")"),
			}})
		case OpUpsert:
			item, _ := itemFromRow(op.Row)
			items = append(items, ddbtypes.TransactWriteItem{Put: &ddbtypes.Put{
				TableName: aws.String(ts.table),
				Item:      item,
			}})
		case OpDelete:
			items = append(items, ddbtypes.TransactWriteItem{Delete: &ddbtypes.Delete{
				TableName: aws.String(ts.table),
				Key:       ddbKey(pk, op.Row.RowKey),
			}})
		}
	}

	_, err := ts.ddbsvc.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var canceled *ddbtypes.TransactionCanceledException
		if errors.As(err, &canceled) {
			for i, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return EntityExists{pk, ops[i].Row.RowKey}
				}
			}
		}
		return ts.mapErr(err)
	}
	return nil
}

func (ts *DynamoTableStore) currentVersion(ctx context.Context, pk, rk string) string {
	row, err := ts.Get(ctx, pk, rk)
	if err != nil {
		return "unknown"
	}
	return row.ETag
}

func (ts *DynamoTableStore) mapErr(err error) error {
	var rnf *ddbtypes.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return TableNotFound{ts.table}
	}
	return err
}

func errIsConditionalCheckFailed(err error) bool {
	var ccf *ddbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func ddbKey(pk, rk string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		pkAttr: &ddbtypes.AttributeValueMemberS{Value: pk},
		rkAttr: &ddbtypes.AttributeValueMemberS{Value: rk},
	}
}

// applyProjection builds a ProjectionExpression with aliased names so column
// names never collide with DynamoDB reserved words. The key and version
// attributes ride along so rows can be rebuilt.
func applyProjection(sel []string, expr **string, names *map[string]string) {
	if len(sel) == 0 {
		return
	}

	aliased := make(map[string]string, len(sel)+3)
	projection := pkAttr + ", " + rkAttr + ", " + verAttr
	for i, col := range sel {
		alias := "#c" + strconv.Itoa(i)
		aliased[alias] = col
		projection += ", " + alias
	}
	*expr = aws.String(projection)
	*names = aliased
}

func itemFromRow(row Row) (map[string]ddbtypes.AttributeValue, string) {
	ver := uuid.New().String()
	item := ddbKey(row.PartitionKey, row.RowKey)
	item[verAttr] = &ddbtypes.AttributeValueMemberS{Value: ver}

	for name, value := range row.Columns {
		switch v := value.(type) {
		case string:
			item[name] = &ddbtypes.AttributeValueMemberS{Value: v}
		case int:
			item[name] = &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(v)}
		case int64:
			item[name] = &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
		case bool:
			item[name] = &ddbtypes.AttributeValueMemberBOOL{Value: v}
		case []byte:
			item[name] = &ddbtypes.AttributeValueMemberB{Value: v}
		case time.Time:
			item[name] = &ddbtypes.AttributeValueMemberS{Value: v.UTC().Format(time.RFC3339Nano)}
		}
	}
	return item, ver
}

func rowFromItem(item map[string]ddbtypes.AttributeValue) Row {
	row := Row{Columns: make(map[string]any, len(item))}
	for name, value := range item {
		switch name {
		case pkAttr:
			if s, ok := value.(*ddbtypes.AttributeValueMemberS); ok {
				row.PartitionKey = s.Value
			}
		case rkAttr:
			if s, ok := value.(*ddbtypes.AttributeValueMemberS); ok {
				row.RowKey = s.Value
			}
		case verAttr:
			if s, ok := value.(*ddbtypes.AttributeValueMemberS); ok {
				row.ETag = s.Value
			}
		default:
			switch v := value.(type) {
			case *ddbtypes.AttributeValueMemberS:
				row.Columns[name] = v.Value
			case *ddbtypes.AttributeValueMemberN:
				if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
					row.Columns[name] = n
				}
			case *ddbtypes.AttributeValueMemberBOOL:
				row.Columns[name] = v.Value
			case *ddbtypes.AttributeValueMemberB:
				row.Columns[name] = v.Value
			}
		}
	}
	return row
}
