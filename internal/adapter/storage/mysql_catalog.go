package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/little-lemon/internal/core/domain"
)

// menuOrderClause maps the accepted orderings to SQL. Only values from this
// table reach the query text.
var menuOrderClause = map[domain.MenuOrdering]string{
	domain.MenuOrderByID:        "id",
	domain.MenuOrderByTitle:     "title, id",
	domain.MenuOrderByTitleDesc: "title DESC, id",
	domain.MenuOrderByPrice:     "price, id",
	domain.MenuOrderByPriceDesc: "price DESC, id",
}

func orderClause(o domain.MenuOrdering) string {
	if c, ok := menuOrderClause[o]; ok {
		return c
	}
	return "id"
}

// likePattern escapes LIKE wildcards in a user search term.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}

func (m *MySQLAdapter) ListMenuItems(ctx context.Context, q domain.MenuQuery) ([]domain.MenuItem, error) {
	query := `SELECT id, title, price, inventory FROM menu_items`
	var args []any
	if q.Search != "" {
		query += ` WHERE LOWER(title) LIKE LOWER(?)`
		args = append(args, likePattern(q.Search))
	}
	query += ` ORDER BY ` + orderClause(q.Ordering) + ` LIMIT ? OFFSET ?`
	args = append(args, q.Page.Limit(), q.Page.Offset())

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query menu items: %w", err)
	}
	defer rows.Close()

	items := []domain.MenuItem{}
	for rows.Next() {
		var it domain.MenuItem
		if err := rows.Scan(&it.ID, &it.Title, &it.Price, &it.Inventory); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (m *MySQLAdapter) GetMenuItem(ctx context.Context, id int64) (domain.MenuItem, error) {
	var it domain.MenuItem
	err := m.db.QueryRowContext(ctx, `
		SELECT id, title, price, inventory FROM menu_items WHERE id = ?`, id,
	).Scan(&it.ID, &it.Title, &it.Price, &it.Inventory)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.MenuItem{}, fmt.Errorf("%w: menu item %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("query menu item: %w", err)
	}
	return it, nil
}

func (m *MySQLAdapter) CreateMenuItem(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error) {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO menu_items (title, price, inventory) VALUES (?, ?, ?)`,
		item.Title, item.Price, item.Inventory,
	)
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("insert menu item: %w", err)
	}
	if item.ID, err = result.LastInsertId(); err != nil {
		return domain.MenuItem{}, fmt.Errorf("menu item id: %w", err)
	}
	return item, nil
}

func (m *MySQLAdapter) UpdateMenuItem(ctx context.Context, item domain.MenuItem) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE menu_items SET title = ?, price = ?, inventory = ? WHERE id = ?`,
		item.Title, item.Price, item.Inventory, item.ID,
	)
	if err != nil {
		return fmt.Errorf("update menu item: %w", err)
	}
	// RowsAffected is 0 for an unchanged row in MySQL, so existence is
	// checked separately.
	if _, err := m.GetMenuItem(ctx, item.ID); err != nil {
		return err
	}
	return nil
}

func (m *MySQLAdapter) DeleteMenuItem(ctx context.Context, id int64) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM menu_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: menu item %d", domain.ErrNotFound, id)
	}
	return nil
}

// --- users & groups ---

func (m *MySQLAdapter) getUser(ctx context.Context, where string, arg any) (domain.User, error) {
	var u domain.User
	err := m.db.QueryRowContext(ctx,
		`SELECT id, username, email FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: user %v", domain.ErrNotFound, arg)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (m *MySQLAdapter) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return m.getUser(ctx, "id = ?", id)
}

func (m *MySQLAdapter) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return m.getUser(ctx, "username = ?", username)
}

func (m *MySQLAdapter) UserGroups(ctx context.Context, userID int64) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT g.name FROM role_groups g
		JOIN user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = ? ORDER BY g.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user groups: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (m *MySQLAdapter) ListGroupMembers(ctx context.Context, group string) ([]domain.User, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email FROM users u
		JOIN user_groups ug ON ug.user_id = u.id
		JOIN role_groups g ON g.id = ug.group_id
		WHERE g.name = ? ORDER BY u.id`, group)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (m *MySQLAdapter) AddGroupMember(ctx context.Context, group string, userID int64) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT IGNORE INTO user_groups (user_id, group_id)
		SELECT ?, id FROM role_groups WHERE name = ?`, userID, group)
	if err != nil {
		return fmt.Errorf("insert group member: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) RemoveGroupMember(ctx context.Context, group string, userID int64) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		DELETE ug FROM user_groups ug
		JOIN role_groups g ON g.id = ug.group_id
		WHERE ug.user_id = ? AND g.name = ?`, userID, group)
	if err != nil {
		return false, fmt.Errorf("delete group member: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLAdapter) EnsureGroups(ctx context.Context, groups []string) error {
	for _, g := range groups {
		if _, err := m.db.ExecContext(ctx, `INSERT IGNORE INTO role_groups (name) VALUES (?)`, g); err != nil {
			return fmt.Errorf("ensure group %q: %w", g, err)
		}
	}
	return nil
}

// --- tokens ---

func (m *MySQLAdapter) IssueToken(ctx context.Context, userID int64) (string, error) {
	token := newToken()
	if _, err := m.db.ExecContext(ctx,
		`INSERT INTO auth_tokens (token, user_id) VALUES (?, ?)`, token, userID); err != nil {
		return "", fmt.Errorf("insert token: %w", err)
	}
	return token, nil
}

func (m *MySQLAdapter) ResolveToken(ctx context.Context, token string) (int64, error) {
	var userID int64
	err := m.db.QueryRowContext(ctx,
		`SELECT user_id FROM auth_tokens WHERE token = ?`, token,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	if err != nil {
		return 0, fmt.Errorf("query token: %w", err)
	}
	return userID, nil
}
