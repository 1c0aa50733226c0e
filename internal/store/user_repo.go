package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"seatscan/internal/types"
)

// emailIndex is the GSI used for login-by-email lookups.
const emailIndex = "email-index"

// UserRepo provides access to registered user accounts.
type UserRepo struct {
	client DynamoAPI
	table  string
}

// NewUserRepo creates a UserRepo over the given table.
func NewUserRepo(client DynamoAPI, table string) *UserRepo {
	return &UserRepo{client: client, table: table}
}

// GetByID fetches a user by id. Returns ErrCodeAuthUserNotFound when the
// subject no longer exists; identity resolution surfaces that distinctly from
// an invalid token.
func (r *UserRepo) GetByID(ctx context.Context, userID string) (*types.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]ddbtypes.AttributeValue{
			"userId": &ddbtypes.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to load user", err)
	}
	if len(out.Item) == 0 {
		return nil, types.NewAppError(types.ErrCodeAuthUserNotFound, "user not found", nil)
	}

	var user types.User
	if err := attributevalue.UnmarshalMap(out.Item, &user); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to unmarshal user", err)
	}
	return &user, nil
}

// GetByEmail queries the email GSI. Returns ErrCodeAuthUserNotFound when no
// account matches.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(emailIndex),
		KeyConditionExpression: aws.String("email = :email"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":email": &ddbtypes.AttributeValueMemberS{Value: email},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to query user by email", err)
	}
	if len(out.Items) == 0 {
		return nil, types.NewAppError(types.ErrCodeAuthUserNotFound, "user not found", nil)
	}

	var user types.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &user); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to unmarshal user", err)
	}
	return &user, nil
}

// Put writes a user record.
func (r *UserRepo) Put(ctx context.Context, user *types.User) error {
	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to marshal user", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to save user", err)
	}
	return nil
}
