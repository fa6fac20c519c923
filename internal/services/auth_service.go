package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"library-backend/internal/dto"
	"library-backend/internal/models"
	"library-backend/internal/password"
	"library-backend/internal/token"
)

const TokenType = "bearer"

// AuthService issues tokens for signup and login and is the authorization
// gate in front of catalog and ledger mutations.
type AuthService struct {
	users    *UserService
	hasher   *password.Hasher
	tokens   *token.Service
	adminKey string
}

func NewAuthService(users *UserService, hasher *password.Hasher, tokens *token.Service, adminKey string) *AuthService {
	return &AuthService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		adminKey: adminKey,
	}
}

func (s *AuthService) RegisterUser(ctx context.Context, req *dto.RegisterUserRequest) (string, error) {
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return "", fmt.Errorf("%w: username, email and password are required", ErrInvalidArgument)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		return "", err
	}

	user, err := s.users.Create(ctx, req.Username, req.Email, passwordHash)
	if err != nil {
		return "", err
	}

	return s.tokens.Issue(token.Claims{UserID: user.ID})
}

// LoginUser returns ErrUserNotFound for an unknown email and
// ErrInvalidCredentials for a wrong password.
func (s *AuthService) LoginUser(ctx context.Context, req *dto.LoginUserRequest) (string, error) {
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return "", err
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	return s.tokens.Issue(token.Claims{UserID: user.ID})
}

// Authenticate resolves a bearer token to its user. Token failures wrap
// both ErrUnauthenticated and the specific token error.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) RequireAdmin(user *models.User) (*models.User, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	if !user.IsAdmin {
		return nil, fmt.Errorf("%w: admin access required", ErrForbidden)
	}
	return user, nil
}

// GrantAdmin promotes a user when key matches the bootstrap secret.
func (s *AuthService) GrantAdmin(ctx context.Context, userID int64, key string) (*models.User, error) {
	if s.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminKey)) != 1 {
		return nil, fmt.Errorf("%w: invalid access key", ErrForbidden)
	}

	user, err := s.users.SetAdmin(ctx, userID, true)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to grant admin: %w", err)
	}
	return user, nil
}
