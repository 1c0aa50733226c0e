package store

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"seatscan/internal/types"
)

// usageCounterTTL keeps a monthly counter around for three months after its
// period so support can inspect recent history before the store expires it.
const usageCounterTTL = 90 * 24 * time.Hour

// UsageRepo provides per-user, per-calendar-month counter access. Counters
// use get-or-create semantics: absence means zero usage this period.
type UsageRepo struct {
	client DynamoAPI
	table  string
	clock  types.Clock
}

// NewUsageRepo creates a UsageRepo over the given table.
func NewUsageRepo(client DynamoAPI, table string, clock types.Clock) *UsageRepo {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &UsageRepo{client: client, table: table, clock: clock}
}

// GetOrCreate fetches the counter for the identity and period, returning a
// zeroed counter when no item exists yet. The zeroed counter is not persisted
// until the first Save.
func (r *UsageRepo) GetOrCreate(ctx context.Context, identityKey, periodKey string) (types.UsageCounter, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]ddbtypes.AttributeValue{
			"identityKey": &ddbtypes.AttributeValueMemberS{Value: identityKey},
			"periodKey":   &ddbtypes.AttributeValueMemberS{Value: periodKey},
		},
	})
	if err != nil {
		return types.UsageCounter{}, types.NewAppError(types.ErrCodeInternalStore, "failed to load usage counter", err)
	}

	if len(out.Item) == 0 {
		return types.UsageCounter{
			IdentityKey: identityKey,
			PeriodKey:   periodKey,
		}, nil
	}

	var counter types.UsageCounter
	if err := attributevalue.UnmarshalMap(out.Item, &counter); err != nil {
		return types.UsageCounter{}, types.NewAppError(types.ErrCodeInternalStore, "failed to unmarshal usage counter", err)
	}
	return counter, nil
}

// Save writes the counter back, refreshing its TTL. Check and record are
// separate calls by design: two concurrent requests from the same identity
// can both pass the check before either saves, so enforcement is best-effort
// with a small bounded overshoot.
func (r *UsageRepo) Save(ctx context.Context, counter types.UsageCounter) error {
	now := r.clock.Now()
	counter.UpdatedAt = now
	counter.ExpiresAt = now.Add(usageCounterTTL).Unix()

	item, err := attributevalue.MarshalMap(counter)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to marshal usage counter", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to save usage counter", err)
	}
	return nil
}
