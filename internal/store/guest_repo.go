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

// guestWindowTTL is the fixed guest-record lifetime. Each recorded seat-map
// view pushes the expiry out by this much, so an active guest's record never
// lapses mid-session while a dormant IP eventually ages out of the store.
const guestWindowTTL = 30 * 24 * time.Hour

// GuestRepo tracks seat-map usage per source IP for unauthenticated callers.
type GuestRepo struct {
	client DynamoAPI
	table  string
	clock  types.Clock
}

// NewGuestRepo creates a GuestRepo over the given table.
func NewGuestRepo(client DynamoAPI, table string, clock types.Clock) *GuestRepo {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &GuestRepo{client: client, table: table, clock: clock}
}

// GetOrCreate fetches the access record for an IP, creating a fresh in-memory
// record (not yet persisted) when none exists.
func (r *GuestRepo) GetOrCreate(ctx context.Context, ip string) (types.GuestAccessRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]ddbtypes.AttributeValue{
			"ipAddress": &ddbtypes.AttributeValueMemberS{Value: ip},
		},
	})
	if err != nil {
		return types.GuestAccessRecord{}, types.NewAppError(types.ErrCodeInternalStore, "failed to load guest access record", err)
	}

	now := r.clock.Now()
	if len(out.Item) == 0 {
		return types.GuestAccessRecord{
			IPAddress:   ip,
			FirstSeenAt: now,
			ExpiresAt:   now.Add(guestWindowTTL).Unix(),
		}, nil
	}

	var rec types.GuestAccessRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return types.GuestAccessRecord{}, types.NewAppError(types.ErrCodeInternalStore, "failed to unmarshal guest access record", err)
	}
	return rec, nil
}

// RecordSeatmapCall increments the IP's counter and extends the window expiry.
func (r *GuestRepo) RecordSeatmapCall(ctx context.Context, rec types.GuestAccessRecord) error {
	now := r.clock.Now()
	rec.SeatmapCallsUsed++
	rec.LastCallAt = now
	rec.ExpiresAt = now.Add(guestWindowTTL).Unix()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to marshal guest access record", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to save guest access record", err)
	}
	return nil
}
