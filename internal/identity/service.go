package identity

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"seatscan/internal/types"
)

// bcryptCost is the bcrypt cost factor used for password hashing.
const bcryptCost = 12

// UserStore is the store access the auth flows need beyond resolution.
type UserStore interface {
	UserGetter
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	Put(ctx context.Context, user *types.User) error
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production implementation of PasswordHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AuthResult is the outcome of a successful auth flow.
type AuthResult struct {
	Token     string      `json:"token"`
	ExpiresIn int         `json:"expiresIn"`
	User      *types.User `json:"user,omitempty"`
}

// Service implements registration, login, guest session issuance, and token
// refresh.
type Service struct {
	users  UserStore
	tokens *TokenService
	hasher PasswordHasher
	clock  types.Clock
	logger *slog.Logger
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Users  UserStore
	Tokens *TokenService
	Hasher PasswordHasher
	Clock  types.Clock
	Logger *slog.Logger
}

// NewService creates an identity Service. If Hasher is nil, the production
// bcryptHasher is used; nil Clock/Logger get the usual defaults.
func NewService(cfg ServiceConfig) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:  cfg.Users,
		tokens: cfg.Tokens,
		hasher: hasher,
		clock:  clock,
		logger: logger,
	}
}

// Register creates a FREE-tier account and returns a user token. Guests who
// register simply stop being gated by the per-IP counter; their guest usage
// is not transferred.
func (s *Service) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, types.NewAppError(types.ErrCodeConflictEmail, "an account with this email already exists", nil)
	} else if err != nil {
		if appErr, ok := err.(*types.AppError); !ok || appErr.Code != types.ErrCodeAuthUserNotFound {
			return nil, err
		}
	}

	hash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	user := &types.User{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Tier:         types.TierFree,
		Status:       types.UserStatusActive,
		AuthProvider: "email",
		CreatedAt:    s.clock.Now(),
	}
	if err := s.users.Put(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.UserID)
	return s.userResult(user)
}

// Login verifies credentials and returns a fresh user token. User-not-found
// and wrong-password both surface as invalid credentials to prevent account
// enumeration.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeAuthUserNotFound {
			return nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		}
		return nil, err
	}

	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
	}

	if user.Status != types.UserStatusActive {
		return nil, types.NewAppError(types.ErrCodeAuthAccountSuspended, "account is suspended", nil)
	}

	s.logger.Info("user logged in", "user_id", user.UserID)
	return s.userResult(user)
}

// GuestSession issues a guest token with a fresh session id and a zeroed
// advisory usage snapshot. No store write happens here; the per-IP counter is
// created lazily on first seat-map use.
func (s *Service) GuestSession(ctx context.Context) (*AuthResult, error) {
	token, err := s.tokens.IssueGuestToken(uuid.NewString(), 0)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Token:     token,
		ExpiresIn: int(s.tokens.Lifetime() / time.Second),
	}, nil
}

// Refresh reissues the presented token with identical claims and a new
// expiry.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*AuthResult, error) {
	token, err := s.tokens.Refresh(rawToken)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Token:     token,
		ExpiresIn: int(s.tokens.Lifetime() / time.Second),
	}, nil
}

func (s *Service) userResult(user *types.User) (*AuthResult, error) {
	token, err := s.tokens.IssueUserToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Token:     token,
		ExpiresIn: int(s.tokens.Lifetime() / time.Second),
		User:      user,
	}, nil
}
