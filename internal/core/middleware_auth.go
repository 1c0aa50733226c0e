package core

import (
	"context"
	"net/http"
	"strings"

	"seatscan/internal/types"
)

// Authenticator resolves a bearer token and source IP into an Identity.
// Injected as an interface for testability; production code uses
// *identity.Resolver.
type Authenticator interface {
	Resolve(ctx context.Context, rawToken, sourceIP string) (types.Identity, error)
}

// RequireAuth resolves the Authorization header into an Identity and stores
// it in the request context. Requests without a bearer token, or with one
// that fails validation, are rejected; suspended accounts are refused here
// before any handler runs.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			Error(w, r, err)
			return
		}

		id, err := s.Authenticator.Resolve(r.Context(), token, ClientIP(r))
		if err != nil {
			Error(w, r, err)
			return
		}

		ctx := types.WithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", types.NewAppError(types.ErrCodeAuthTokenMissing,
			"authorization header is required", nil)
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", types.NewAppError(types.ErrCodeAuthTokenInvalid,
			"authorization header must use the Bearer scheme", nil)
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", types.NewAppError(types.ErrCodeAuthTokenMissing,
			"bearer token is empty", nil)
	}
	return token, nil
}

// IdentityFromContext returns the resolved Identity, failing with an auth
// error when the middleware did not run. Handlers behind RequireAuth use this
// instead of re-parsing the token.
func IdentityFromContext(ctx context.Context) (types.Identity, error) {
	id, ok := types.GetIdentity(ctx)
	if !ok {
		return types.Identity{}, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"request is not authenticated", nil)
	}
	return id, nil
}
