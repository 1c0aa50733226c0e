package identity

import (
	"context"
	"log/slog"

	"seatscan/internal/types"
)

// UserGetter is the store access the resolver needs: a per-request fetch of
// the subject. No request-scoped caching happens here so that a suspension or
// tier change takes effect on the very next call.
type UserGetter interface {
	GetByID(ctx context.Context, userID string) (*types.User, error)
}

// Resolver decodes a bearer token into an Identity.
type Resolver struct {
	tokens *TokenService
	users  UserGetter
	logger *slog.Logger
}

// NewResolver creates a Resolver. If logger is nil, slog.Default() is used.
func NewResolver(tokens *TokenService, users UserGetter, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{tokens: tokens, users: users, logger: logger}
}

// Resolve verifies the token and produces either a guest or user identity.
// The role claim is checked before any store lookup; guest tokens never read
// the user table. User identities are re-fetched every call, and a status
// other than active is rejected as suspended.
func (r *Resolver) Resolve(ctx context.Context, rawToken, sourceIP string) (types.Identity, error) {
	claims, err := r.tokens.Validate(rawToken)
	if err != nil {
		return types.Identity{}, err
	}

	switch claims.Role {
	case types.RoleGuest:
		guest := &types.GuestIdentity{
			IPAddress: sourceIP,
			SessionID: claims.Subject,
		}
		if claims.GuestLimits != nil {
			guest.CallsUsed = claims.GuestLimits.SeatmapViewsUsed
		}
		return types.Identity{Role: types.RoleGuest, Guest: guest}, nil

	case types.RoleUser:
		user, err := r.users.GetByID(ctx, claims.Subject)
		if err != nil {
			return types.Identity{}, err
		}
		if user.Status != types.UserStatusActive {
			r.logger.Warn("rejected suspended account", "user_id", user.UserID)
			return types.Identity{}, types.NewAppError(types.ErrCodeAuthAccountSuspended, "account is suspended", nil)
		}
		return types.Identity{Role: types.RoleUser, User: user}, nil

	default:
		return types.Identity{}, types.NewAppErrorWithDetails(types.ErrCodeAuthTokenInvalid,
			"token carries an unknown role", nil,
			map[string]any{"role": string(claims.Role)})
	}
}
