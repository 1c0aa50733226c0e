package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatscan/internal/types"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// movableClock lets tests advance time past a token's expiry.
type movableClock struct{ now time.Time }

func (c *movableClock) Now() time.Time { return c.now }

func newTestTokenService(clock types.Clock) *TokenService {
	return NewTokenService(testSecret, 24*time.Hour, clock)
}

func testUser() *types.User {
	return &types.User{
		UserID:       "u-1",
		Email:        "ada@example.com",
		Tier:         types.TierPro,
		Status:       types.UserStatusActive,
		AuthProvider: "email",
	}
}

func TestUserTokenRoundTrip(t *testing.T) {
	svc := newTestTokenService(nil)

	raw, err := svc.IssueUserToken(testUser())
	require.NoError(t, err)

	claims, err := svc.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, claims.Role)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Nil(t, claims.GuestLimits)
}

func TestGuestTokenCarriesAdvisorySnapshot(t *testing.T) {
	svc := newTestTokenService(nil)

	raw, err := svc.IssueGuestToken("session-1", 1)
	require.NoError(t, err)

	claims, err := svc.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, types.RoleGuest, claims.Role)
	assert.Equal(t, "session-1", claims.Subject)
	require.NotNil(t, claims.GuestLimits)
	assert.Equal(t, 1, claims.GuestLimits.SeatmapViewsUsed)
	assert.Equal(t, types.GuestSeatmapBudget, claims.GuestLimits.MaxSeatmapViews)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	clock := &movableClock{now: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)}
	svc := newTestTokenService(clock)

	raw, err := svc.IssueUserToken(testUser())
	require.NoError(t, err)

	clock.now = clock.now.Add(25 * time.Hour)

	_, err = svc.Validate(raw)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenExpired, appErr.Code)
}

func TestTamperedTokenIsRejected(t *testing.T) {
	svc := newTestTokenService(nil)
	other := NewTokenService("another-secret-that-is-32-bytes!!", 24*time.Hour, nil)

	raw, err := other.IssueUserToken(testUser())
	require.NoError(t, err)

	_, err = svc.Validate(raw)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

func TestRefreshPreservesClaimsAndExtendsExpiry(t *testing.T) {
	clock := &movableClock{now: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)}
	svc := newTestTokenService(clock)

	raw, err := svc.IssueGuestToken("session-1", 1)
	require.NoError(t, err)

	clock.now = clock.now.Add(23 * time.Hour)

	refreshed, err := svc.Refresh(raw)
	require.NoError(t, err)

	claims, err := svc.Validate(refreshed)
	require.NoError(t, err)
	assert.Equal(t, types.RoleGuest, claims.Role)
	assert.Equal(t, "session-1", claims.Subject)
	// The advisory snapshot is carried over untouched, even if stale.
	require.NotNil(t, claims.GuestLimits)
	assert.Equal(t, 1, claims.GuestLimits.SeatmapViewsUsed)
	assert.Equal(t, clock.now.Add(24*time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	clock := &movableClock{now: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)}
	svc := newTestTokenService(clock)

	raw, err := svc.IssueUserToken(testUser())
	require.NoError(t, err)

	clock.now = clock.now.Add(48 * time.Hour)

	_, err = svc.Refresh(raw)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenExpired, appErr.Code)
}
