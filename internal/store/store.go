// Package store provides DynamoDB-backed data access for tier definitions,
// usage counters, guest access windows, bookmarks, and user accounts.
//
// All repositories speak to the store through the narrow DynamoAPI contract
// (get/put/query/scan) so tests can substitute in-memory fakes. Items that
// must age out of the store (guest windows, monthly usage counters, bookmark
// snapshots) carry an `expiresAt` epoch-seconds attribute wired to the
// table's TTL setting; nothing is deleted explicitly.
package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DynamoAPI is the key-value store contract consumed by all repositories.
// *dynamodb.Client satisfies it.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}
