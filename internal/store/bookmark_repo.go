package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"seatscan/internal/types"
)

// BookmarkRepo provides access to persisted offer snapshots. The table uses a
// composite key (userId, bookmarkId) so all reads are scoped to the owner.
type BookmarkRepo struct {
	client DynamoAPI
	table  string
}

// NewBookmarkRepo creates a BookmarkRepo over the given table.
func NewBookmarkRepo(client DynamoAPI, table string) *BookmarkRepo {
	return &BookmarkRepo{client: client, table: table}
}

// Put writes a bookmark record.
func (r *BookmarkRepo) Put(ctx context.Context, b *types.Bookmark) error {
	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to marshal bookmark", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to save bookmark", err)
	}
	return nil
}

// Get fetches one bookmark owned by the user. Returns ErrCodeNotFoundBookmark
// when absent.
func (r *BookmarkRepo) Get(ctx context.Context, userID, bookmarkID string) (*types.Bookmark, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]ddbtypes.AttributeValue{
			"userId":     &ddbtypes.AttributeValueMemberS{Value: userID},
			"bookmarkId": &ddbtypes.AttributeValueMemberS{Value: bookmarkID},
		},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to load bookmark", err)
	}
	if len(out.Item) == 0 {
		return nil, types.NewAppError(types.ErrCodeNotFoundBookmark, "bookmark not found", nil)
	}

	var b types.Bookmark
	if err := attributevalue.UnmarshalMap(out.Item, &b); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to unmarshal bookmark", err)
	}
	return &b, nil
}

// ListByUser queries all bookmarks owned by the user.
func (r *BookmarkRepo) ListByUser(ctx context.Context, userID string) ([]types.Bookmark, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("userId = :userId"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":userId": &ddbtypes.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to query bookmarks", err)
	}

	bookmarks := make([]types.Bookmark, 0, len(out.Items))
	for _, item := range out.Items {
		var b types.Bookmark
		if err := attributevalue.UnmarshalMap(item, &b); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to unmarshal bookmark", err)
		}
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, nil
}

// Delete removes a bookmark owned by the user.
func (r *BookmarkRepo) Delete(ctx context.Context, userID, bookmarkID string) error {
	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key: map[string]ddbtypes.AttributeValue{
			"userId":     &ddbtypes.AttributeValueMemberS{Value: userID},
			"bookmarkId": &ddbtypes.AttributeValueMemberS{Value: bookmarkID},
		},
	}); err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to delete bookmark", err)
	}
	return nil
}
