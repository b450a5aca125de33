package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/port"
)

// AuthService resolves API tokens to principals. The role is derived once
// here and travels with the principal for the rest of the request.
type AuthService struct {
	tokens port.TokenStore
	users  port.UserRepository
}

func NewAuthService(tokens port.TokenStore, users port.UserRepository) *AuthService {
	return &AuthService{tokens: tokens, users: users}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Anonymous, domain.ErrUnauthenticated
	}

	userID, err := s.tokens.ResolveToken(ctx, token)
	if err != nil {
		return domain.Anonymous, err
	}

	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Anonymous, fmt.Errorf("%w: token owner no longer exists", domain.ErrUnauthenticated)
	}
	if err != nil {
		return domain.Anonymous, fmt.Errorf("load user %d: %w", userID, err)
	}

	groups, err := s.users.UserGroups(ctx, userID)
	if err != nil {
		return domain.Anonymous, fmt.Errorf("load groups of user %d: %w", userID, err)
	}

	return domain.Principal{
		UserID:   user.ID,
		Username: user.Username,
		Role:     domain.RoleFromGroups(groups),
	}, nil
}

// IssueToken creates a new API token for an existing user.
func (s *AuthService) IssueToken(ctx context.Context, userID int64) (string, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return "", err
	}
	return s.tokens.IssueToken(ctx, userID)
}
