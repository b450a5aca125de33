package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/core/policy"
	"github.com/rl1809/little-lemon/internal/port"
)

// GroupService manages the Manager and Delivery crew memberships.
type GroupService struct {
	users port.UserRepository
	log   *zap.Logger
}

func NewGroupService(users port.UserRepository, log *zap.Logger) *GroupService {
	return &GroupService{users: users, log: log}
}

// Bootstrap creates the role groups if they are missing. Safe to call on
// every start.
func (s *GroupService) Bootstrap(ctx context.Context) error {
	if err := s.users.EnsureGroups(ctx, domain.Groups); err != nil {
		return fmt.Errorf("ensure groups: %w", err)
	}
	return nil
}

// ListMembers lists a group. The Manager group is visible to Managers only;
// the Delivery crew group to any authenticated user.
func (s *GroupService) ListMembers(ctx context.Context, p domain.Principal, group string) ([]domain.User, error) {
	if !domain.ValidGroup(group) {
		return nil, fmt.Errorf("%w: group %q", domain.ErrNotFound, group)
	}

	preds := []policy.Predicate{policy.IsAuthenticated}
	if group == domain.GroupManager {
		preds = append(preds, policy.IsManager)
	}
	if err := policy.Require(p, policy.Read, preds...); err != nil {
		return nil, err
	}

	return s.users.ListGroupMembers(ctx, group)
}

// AddMember tags username with group. Adding an existing member succeeds.
func (s *GroupService) AddMember(ctx context.Context, p domain.Principal, group, username string) (domain.User, error) {
	if err := policy.Require(p, policy.Write, policy.IsAuthenticated, policy.IsManager); err != nil {
		return domain.User{}, err
	}
	if !domain.ValidGroup(group) {
		return domain.User{}, fmt.Errorf("%w: group %q", domain.ErrNotFound, group)
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return domain.User{}, err
	}

	if err := s.users.AddGroupMember(ctx, group, user.ID); err != nil {
		return domain.User{}, fmt.Errorf("add %s to %s: %w", username, group, err)
	}

	s.log.Info("group member added",
		zap.String("group", group),
		zap.Int64("user_id", user.ID),
		zap.Int64("actor_id", p.UserID),
	)
	return user, nil
}

func (s *GroupService) RemoveMember(ctx context.Context, p domain.Principal, group string, userID int64) error {
	if err := policy.Require(p, policy.Write, policy.IsAuthenticated, policy.IsManager); err != nil {
		return err
	}
	if !domain.ValidGroup(group) {
		return fmt.Errorf("%w: group %q", domain.ErrNotFound, group)
	}

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
		}
		return err
	}

	removed, err := s.users.RemoveGroupMember(ctx, group, userID)
	if err != nil {
		return fmt.Errorf("remove user %d from %s: %w", userID, group, err)
	}
	if !removed {
		return fmt.Errorf("%w: user %d is not in %s", domain.ErrNotFound, userID, group)
	}

	s.log.Info("group member removed",
		zap.String("group", group),
		zap.Int64("user_id", userID),
		zap.Int64("actor_id", p.UserID),
	)
	return nil
}
