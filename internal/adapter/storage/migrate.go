package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Migrations are embedded so the binary can migrate regardless of the
// working directory.
//
//go:embed migrations/mysql/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// ExecFunc runs a single SQL statement.
type ExecFunc func(ctx context.Context, stmt string) error

// Migrate applies every migration of dialect in lexical order. Statements are
// idempotent, so running it on every start is safe.
func Migrate(ctx context.Context, dialect string, exec ExecFunc) ([]string, error) {
	names, err := fs.Glob(migrationsFS, "migrations/"+dialect+"/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
	sort.Strings(names)

	for _, name := range names {
		sqlBytes, err := migrationsFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		for _, stmt := range splitStatements(string(sqlBytes)) {
			if err := exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
	}
	return names, nil
}

// splitStatements splits a migration file on semicolons ending a line.
func splitStatements(src string) []string {
	var stmts []string
	for _, part := range strings.Split(src, ";\n") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";"))
		if part != "" {
			stmts = append(stmts, part)
		}
	}
	return stmts
}

func (m *MySQLAdapter) Migrate(ctx context.Context) ([]string, error) {
	return Migrate(ctx, "mysql", func(ctx context.Context, stmt string) error {
		_, err := m.db.ExecContext(ctx, stmt)
		return err
	})
}
