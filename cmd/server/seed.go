package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/little-lemon/internal/adapter/storage"
	"github.com/rl1809/little-lemon/internal/config"
	"github.com/rl1809/little-lemon/internal/core/service"
)

// seedUsers provisions the configured users into the memory store and issues
// each one a token. Tokens are logged since nothing else can hand them out.
func seedUsers(ctx context.Context, mem *storage.MemoryAdapter, auth *service.AuthService, seeds []config.SeedUser, log *zap.Logger) (map[string]string, error) {
	tokens := make(map[string]string, len(seeds))
	for _, s := range seeds {
		user := mem.CreateUser(s.Username, s.Username+"@littlelemon.local")
		if s.Group != "" {
			if err := mem.AddGroupMember(ctx, s.Group, user.ID); err != nil {
				return nil, fmt.Errorf("add %s to %s: %w", s.Username, s.Group, err)
			}
		}

		token, err := auth.IssueToken(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("issue token for %s: %w", s.Username, err)
		}
		tokens[s.Username] = token
		log.Info("seeded user",
			zap.String("username", s.Username),
			zap.String("group", s.Group),
			zap.String("token", token),
		)
	}
	return tokens, nil
}
