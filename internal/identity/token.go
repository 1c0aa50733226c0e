// Package identity implements the token contract and identity resolution.
//
// Tokens are signed HS256 JWTs with a 24 hour lifetime. The role claim
// (guest|user) is authoritative and is checked before any store lookup: guest
// tokens never trigger a user read. Guest tokens embed an advisory usage
// snapshot taken at issuance; because tokens are stateless and cannot be
// revoked, the persisted per-IP counter remains the source of truth for
// enforcement and the claim is display-only.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"seatscan/internal/types"
)

// GuestLimits is the advisory usage snapshot embedded in guest tokens.
type GuestLimits struct {
	SeatmapViewsUsed int `json:"seatmapViewsUsed"`
	MaxSeatmapViews  int `json:"maxSeatmapViews"`
}

// Claims is the full claim set carried by seatscan tokens.
type Claims struct {
	Role         types.Role   `json:"role"`
	Email        string       `json:"email,omitempty"`
	AuthProvider string       `json:"provider,omitempty"`
	GuestLimits  *GuestLimits `json:"guestLimits,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues, validates, and refreshes bearer tokens.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	clock    types.Clock
}

// NewTokenService creates a TokenService. The secret must be at least 32
// bytes (enforced at config load). If clock is nil, RealClock is used.
func NewTokenService(secret string, lifetime time.Duration, clock types.Clock) *TokenService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), lifetime: lifetime, clock: clock}
}

// IssueUserToken creates a token for a registered user.
func (s *TokenService) IssueUserToken(user *types.User) (string, error) {
	return s.sign(Claims{
		Role:         types.RoleUser,
		Email:        user.Email,
		AuthProvider: user.AuthProvider,
	}, user.UserID)
}

// IssueGuestToken creates a token for a guest session. The usage snapshot is
// advisory; enforcement reads the persisted per-IP counter.
func (s *TokenService) IssueGuestToken(sessionID string, seatmapViewsUsed int) (string, error) {
	return s.sign(Claims{
		Role:         types.RoleGuest,
		AuthProvider: "guest",
		GuestLimits: &GuestLimits{
			SeatmapViewsUsed: seatmapViewsUsed,
			MaxSeatmapViews:  types.GuestSeatmapBudget,
		},
	}, sessionID)
}

// Validate parses and verifies a token, returning its claims. Expired and
// malformed tokens both surface as AuthError with distinct codes.
func (s *TokenService) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "token has expired", err)
		}
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token could not be verified", err)
	}
	if !token.Valid {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token could not be verified", nil)
	}
	return claims, nil
}

// Refresh reissues a token with identical claims and a new expiry. Guest
// usage state is deliberately not re-validated here: the token snapshot is
// advisory only.
func (s *TokenService) Refresh(raw string) (string, error) {
	claims, err := s.Validate(raw)
	if err != nil {
		return "", err
	}
	return s.sign(Claims{
		Role:         claims.Role,
		Email:        claims.Email,
		AuthProvider: claims.AuthProvider,
		GuestLimits:  claims.GuestLimits,
	}, claims.Subject)
}

// Lifetime returns the configured token lifetime.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}

func (s *TokenService) sign(claims Claims, subject string) (string, error) {
	now := s.clock.Now()
	claims.Subject = subject
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.lifetime))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to sign token", err)
	}
	return signed, nil
}
