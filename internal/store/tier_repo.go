package store

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"seatscan/internal/types"
)

// TierRepo provides read access to tier definitions. The tier table is small
// (one row per tier) and is read once per process by the catalog, so a full
// scan with an active filter is the access pattern.
type TierRepo struct {
	client DynamoAPI
	table  string
	logger *slog.Logger
}

// NewTierRepo creates a TierRepo over the given table.
func NewTierRepo(client DynamoAPI, table string, logger *slog.Logger) *TierRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &TierRepo{client: client, table: table, logger: logger}
}

// FindAllActive scans the tier table for active definitions. Individual rows
// that fail to unmarshal are skipped with a warning rather than aborting the
// scan; a corrupt row must not take down the whole catalog.
func (r *TierRepo) FindAllActive(ctx context.Context) ([]types.TierDefinition, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.table),
		FilterExpression: aws.String("active = :active"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":active": &ddbtypes.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to scan tier definitions", err)
	}

	defs := make([]types.TierDefinition, 0, len(out.Items))
	for _, item := range out.Items {
		var def types.TierDefinition
		if err := attributevalue.UnmarshalMap(item, &def); err != nil {
			r.logger.Warn("skipping unparseable tier definition", "error", err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}
