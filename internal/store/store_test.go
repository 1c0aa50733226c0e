package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatscan/internal/types"
)

// fakeDynamo scripts the DynamoAPI surface and captures inputs.
type fakeDynamo struct {
	getOut    *dynamodb.GetItemOutput
	getErr    error
	getInput  *dynamodb.GetItemInput
	putInput  *dynamodb.PutItemInput
	putErr    error
	queryOut  *dynamodb.QueryOutput
	queryErr  error
	scanOut   *dynamodb.ScanOutput
	scanErr   error
	deleteKey map[string]ddbtypes.AttributeValue
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.getInput = params
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.getOut == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getOut, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInput = params
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deleteKey = params.Key
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryOut == nil {
		return &dynamodb.QueryOutput{}, nil
	}
	return f.queryOut, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	if f.scanOut == nil {
		return &dynamodb.ScanOutput{}, nil
	}
	return f.scanOut, nil
}

func mustMarshal(t *testing.T, v any) map[string]ddbtypes.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return item
}

type frozenClock struct{ now time.Time }

func (c frozenClock) Now() time.Time { return c.now }

func requireStoreCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestUsageRepoGetOrCreateReturnsZeroedCounterWhenAbsent(t *testing.T) {
	db := &fakeDynamo{}
	repo := NewUsageRepo(db, "usage", frozenClock{now: time.Now()})

	counter, err := repo.GetOrCreate(context.Background(), "u-1", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, "u-1", counter.IdentityKey)
	assert.Equal(t, "2026-08", counter.PeriodKey)
	assert.Zero(t, counter.SeatmapCallsUsed)
	assert.Zero(t, counter.BookmarksCreated)
}

func TestUsageRepoGetOrCreateUnmarshalsExistingCounter(t *testing.T) {
	existing := types.UsageCounter{IdentityKey: "u-1", PeriodKey: "2026-08", SeatmapCallsUsed: 7}
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: mustMarshal(t, existing)}}
	repo := NewUsageRepo(db, "usage", frozenClock{now: time.Now()})

	counter, err := repo.GetOrCreate(context.Background(), "u-1", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 7, counter.SeatmapCallsUsed)
}

func TestUsageRepoSaveRefreshesTTL(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	db := &fakeDynamo{}
	repo := NewUsageRepo(db, "usage", frozenClock{now: now})

	err := repo.Save(context.Background(), types.UsageCounter{IdentityKey: "u-1", PeriodKey: "2026-08", SeatmapCallsUsed: 1})
	require.NoError(t, err)

	require.NotNil(t, db.putInput)
	var saved types.UsageCounter
	require.NoError(t, attributevalue.UnmarshalMap(db.putInput.Item, &saved))
	assert.Equal(t, now.Add(usageCounterTTL).Unix(), saved.ExpiresAt)
	assert.Equal(t, now, saved.UpdatedAt.UTC())
}

func TestUsageRepoWrapsStoreFailure(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("throttled")}
	repo := NewUsageRepo(db, "usage", nil)

	_, err := repo.GetOrCreate(context.Background(), "u-1", "2026-08")
	requireStoreCode(t, err, types.ErrCodeInternalStore)
}

func TestUserRepoGetByIDNotFound(t *testing.T) {
	repo := NewUserRepo(&fakeDynamo{}, "users")

	_, err := repo.GetByID(context.Background(), "missing")
	requireStoreCode(t, err, types.ErrCodeAuthUserNotFound)
}

func TestUserRepoGetByEmailQueriesIndex(t *testing.T) {
	user := types.User{UserID: "u-1", Email: "ada@example.com", Tier: types.TierPro}
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{
		Items: []map[string]ddbtypes.AttributeValue{mustMarshal(t, user)},
	}}
	repo := NewUserRepo(db, "users")

	got, err := repo.GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)
}

func TestUserRepoGetByEmailNotFound(t *testing.T) {
	repo := NewUserRepo(&fakeDynamo{}, "users")

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	requireStoreCode(t, err, types.ErrCodeAuthUserNotFound)
}

func TestGuestRepoGetOrCreateStartsFreshWindow(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	repo := NewGuestRepo(&fakeDynamo{}, "guests", frozenClock{now: now})

	rec, err := repo.GetOrCreate(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", rec.IPAddress)
	assert.Zero(t, rec.SeatmapCallsUsed)
	assert.Equal(t, now.Add(guestWindowTTL).Unix(), rec.ExpiresAt)
}

func TestGuestRepoRecordSeatmapCallIncrementsAndExtends(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	db := &fakeDynamo{}
	repo := NewGuestRepo(db, "guests", frozenClock{now: now})

	err := repo.RecordSeatmapCall(context.Background(), types.GuestAccessRecord{
		IPAddress:        "203.0.113.9",
		SeatmapCallsUsed: 1,
	})
	require.NoError(t, err)

	var saved types.GuestAccessRecord
	require.NoError(t, attributevalue.UnmarshalMap(db.putInput.Item, &saved))
	assert.Equal(t, 2, saved.SeatmapCallsUsed)
	assert.Equal(t, now.Add(guestWindowTTL).Unix(), saved.ExpiresAt)
}

func TestBookmarkRepoGetNotFound(t *testing.T) {
	repo := NewBookmarkRepo(&fakeDynamo{}, "bookmarks")

	_, err := repo.Get(context.Background(), "u-1", "missing")
	requireStoreCode(t, err, types.ErrCodeNotFoundBookmark)
}

func TestBookmarkRepoGetScopesToOwner(t *testing.T) {
	bm := types.Bookmark{UserID: "u-1", BookmarkID: "bm-1", Title: "FRA-JFK"}
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: mustMarshal(t, bm)}}
	repo := NewBookmarkRepo(db, "bookmarks")

	got, err := repo.Get(context.Background(), "u-1", "bm-1")
	require.NoError(t, err)
	assert.Equal(t, "bm-1", got.BookmarkID)

	// Both halves of the composite key are always present.
	key := db.getInput.Key
	assert.Contains(t, key, "userId")
	assert.Contains(t, key, "bookmarkId")
}

func TestBookmarkRepoListByUser(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{
		Items: []map[string]ddbtypes.AttributeValue{
			mustMarshal(t, types.Bookmark{UserID: "u-1", BookmarkID: "bm-1"}),
			mustMarshal(t, types.Bookmark{UserID: "u-1", BookmarkID: "bm-2"}),
		},
	}}
	repo := NewBookmarkRepo(db, "bookmarks")

	got, err := repo.ListByUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestBookmarkRepoDelete(t *testing.T) {
	db := &fakeDynamo{}
	repo := NewBookmarkRepo(db, "bookmarks")

	require.NoError(t, repo.Delete(context.Background(), "u-1", "bm-1"))
	assert.Contains(t, db.deleteKey, "userId")
	assert.Contains(t, db.deleteKey, "bookmarkId")
}

func TestTierRepoFindAllActiveSkipsCorruptRows(t *testing.T) {
	good := types.TierDefinition{TierID: "t-pro", TierName: types.TierPro, MaxSeatmapCalls: 200, Active: true}
	corrupt := map[string]ddbtypes.AttributeValue{
		"tierId":          &ddbtypes.AttributeValueMemberS{Value: "t-bad"},
		"maxSeatmapCalls": &ddbtypes.AttributeValueMemberS{Value: "not-a-number"},
	}
	db := &fakeDynamo{scanOut: &dynamodb.ScanOutput{
		Items: []map[string]ddbtypes.AttributeValue{mustMarshal(t, good), corrupt},
	}}
	repo := NewTierRepo(db, "tiers", nil)

	defs, err := repo.FindAllActive(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1, "a corrupt row is skipped, not fatal")
	assert.Equal(t, types.TierPro, defs[0].TierName)
}

func TestTierRepoFindAllActiveScanFailure(t *testing.T) {
	db := &fakeDynamo{scanErr: errors.New("table missing")}
	repo := NewTierRepo(db, "tiers", nil)

	_, err := repo.FindAllActive(context.Background())
	requireStoreCode(t, err, types.ErrCodeInternalStore)
}
