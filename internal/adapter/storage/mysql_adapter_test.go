package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/little-lemon/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/littlelemon?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return db
}

func TestMySQLAdapter(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	_, err := adapter.Migrate(ctx)
	require.NoError(t, err)

	newUser := func(t *testing.T, username string) domain.User {
		result, err := db.ExecContext(ctx, `INSERT INTO users (username, email) VALUES (?, ?)`, username, username+"@littlelemon.test")
		require.NoError(t, err)
		id, err := result.LastInsertId()
		require.NoError(t, err)
		return domain.User{ID: id, Username: username, Email: username + "@littlelemon.test"}
	}
	runRepositorySuite(t, adapter, newUser)

	t.Run("TokensOutliveAdapter", func(t *testing.T) {
		user := newUser(t, fmt.Sprintf("reopen-%d", time.Now().UnixNano()))
		token, err := adapter.IssueToken(ctx, user.ID)
		require.NoError(t, err)

		id, err := NewMySQLAdapter(db).ResolveToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, id)
	})
}
