package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/little-lemon/internal/core/domain"
)

// staticTokens resolves a fixed set of tokens, including ones whose owner
// the user store has never seen.
type staticTokens map[string]int64

func (s staticTokens) ResolveToken(ctx context.Context, token string) (int64, error) {
	id, ok := s[token]
	if !ok {
		return 0, domain.ErrUnauthenticated
	}
	return id, nil
}

func (s staticTokens) IssueToken(ctx context.Context, userID int64) (string, error) {
	return "", errors.New("read only")
}

func TestAuthenticate(t *testing.T) {
	e := newEnv(t)
	svc := NewAuthService(e.db, e.db)
	ctx := context.Background()

	cases := []domain.Principal{e.manager, e.crew, e.customer}
	for _, want := range cases {
		token, err := svc.IssueToken(ctx, want.UserID)
		require.NoError(t, err)
		assert.Len(t, token, 40)

		got, err := svc.Authenticate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAuthenticate_ManagerWinsOverCrew(t *testing.T) {
	e := newEnv(t)
	svc := NewAuthService(e.db, e.db)
	ctx := context.Background()

	require.NoError(t, e.db.AddGroupMember(ctx, domain.GroupDeliveryCrew, e.manager.UserID))
	token, err := svc.IssueToken(ctx, e.manager.UserID)
	require.NoError(t, err)

	p, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, p.Role)
}

func TestAuthenticate_Rejects(t *testing.T) {
	e := newEnv(t)
	svc := NewAuthService(e.db, e.db)
	ctx := context.Background()

	p, err := svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.False(t, p.Authenticated())

	_, err = svc.Authenticate(ctx, "deadbeef")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	orphaned := NewAuthService(staticTokens{"orphan": 4242}, e.db)
	_, err = orphaned.Authenticate(ctx, "orphan")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = svc.IssueToken(ctx, 4242)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
