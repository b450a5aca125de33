package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/port"
)

// PostgresAdapter is the pgx implementation of the database port.
type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

var _ port.DatabaseRepository = (*PostgresAdapter)(nil)

func (p *PostgresAdapter) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresAdapter) Migrate(ctx context.Context) ([]string, error) {
	return Migrate(ctx, "postgres", func(ctx context.Context, stmt string) error {
		_, err := p.pool.Exec(ctx, stmt)
		return err
	})
}

// pgQueryer is satisfied by both the pool and a transaction.
type pgQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// --- menu ---

func (p *PostgresAdapter) ListMenuItems(ctx context.Context, q domain.MenuQuery) ([]domain.MenuItem, error) {
	query := `SELECT id, title, price, inventory FROM menu_items`
	var args []any
	if q.Search != "" {
		args = append(args, likePattern(q.Search))
		query += ` WHERE title ILIKE $1`
	}
	args = append(args, q.Page.Limit(), q.Page.Offset())
	query += fmt.Sprintf(` ORDER BY %s LIMIT $%d OFFSET $%d`, orderClause(q.Ordering), len(args)-1, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
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

func (p *PostgresAdapter) GetMenuItem(ctx context.Context, id int64) (domain.MenuItem, error) {
	var it domain.MenuItem
	err := p.pool.QueryRow(ctx, `
		SELECT id, title, price, inventory FROM menu_items WHERE id = $1`, id,
	).Scan(&it.ID, &it.Title, &it.Price, &it.Inventory)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MenuItem{}, fmt.Errorf("%w: menu item %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("query menu item: %w", err)
	}
	return it, nil
}

func (p *PostgresAdapter) CreateMenuItem(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO menu_items (title, price, inventory) VALUES ($1, $2, $3)
		RETURNING id`,
		item.Title, item.Price, item.Inventory,
	).Scan(&item.ID)
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("insert menu item: %w", err)
	}
	return item, nil
}

func (p *PostgresAdapter) UpdateMenuItem(ctx context.Context, item domain.MenuItem) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE menu_items SET title = $1, price = $2, inventory = $3 WHERE id = $4`,
		item.Title, item.Price, item.Inventory, item.ID,
	)
	if err != nil {
		return fmt.Errorf("update menu item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: menu item %d", domain.ErrNotFound, item.ID)
	}
	return nil
}

func (p *PostgresAdapter) DeleteMenuItem(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: menu item %d", domain.ErrNotFound, id)
	}
	return nil
}

// --- cart ---

func (p *PostgresAdapter) AddCartLine(ctx context.Context, line domain.CartLine) (domain.CartLine, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO cart (user_id, menuitem_id, quantity, unit_price, price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		line.UserID, line.MenuItemID, line.Quantity, line.UnitPrice, line.Price,
	).Scan(&line.ID)
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("insert cart line: %w", err)
	}
	return line, nil
}

func pgCartLines(ctx context.Context, q pgQueryer, query string, args ...any) ([]domain.CartLine, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.ID, &l.UserID, &l.MenuItemID, &l.Quantity, &l.UnitPrice, &l.Price); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (p *PostgresAdapter) ListCartLines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	return pgCartLines(ctx, p.pool, `SELECT `+cartColumns+` FROM cart WHERE user_id = $1 ORDER BY id`, userID)
}

func (p *PostgresAdapter) ClearCart(ctx context.Context, userID int64) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM cart WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// --- orders ---

func (p *PostgresAdapter) PlaceOrder(ctx context.Context, userID int64, build port.BuildOrderFunc) (domain.Order, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lines, err := pgCartLines(ctx, tx,
		`SELECT `+cartColumns+` FROM cart WHERE user_id = $1 ORDER BY id FOR UPDATE`, userID)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := build(lines)
	if err != nil {
		return domain.Order{}, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, delivery_crew_id, status, total, date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		order.UserID, order.DeliveryCrew, int16(order.Status), order.Total, order.Date,
	).Scan(&order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, menuitem_id, quantity, unit_price, price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			item.OrderID, item.MenuItemID, item.Quantity, item.UnitPrice, item.Price,
		).Scan(&item.ID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ID)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM cart WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return domain.Order{}, fmt.Errorf("delete cart lines: %w", err)
	}
	if tag.RowsAffected() != int64(len(lines)) {
		return domain.Order{}, fmt.Errorf("delete cart lines: removed %d of %d", tag.RowsAffected(), len(lines))
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("commit order: %w", err)
	}
	return order, nil
}

func pgScanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		status int16
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.DeliveryCrew, &status, &o.Total, &o.Date); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.Items = []domain.OrderItem{}
	return o, nil
}

func (p *PostgresAdapter) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.DeliveryCrewID != 0 {
		args = append(args, filter.DeliveryCrewID)
		where = append(where, fmt.Sprintf("delivery_crew_id = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := pgScanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := pgAttachItems(ctx, p.pool, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func pgAttachItems(ctx context.Context, q pgQueryer, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[int64]int, len(orders))
	ids := make([]int64, 0, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		ids = append(ids, o.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT id, order_id, menuitem_id, quantity, unit_price, price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Quantity, &it.UnitPrice, &it.Price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		i := index[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return rows.Err()
}

func (p *PostgresAdapter) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	o, err := pgScanOrder(p.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", err)
	}

	orders := []domain.Order{o}
	if err := pgAttachItems(ctx, p.pool, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (p *PostgresAdapter) UpdateOrder(ctx context.Context, id int64, mutate func(*domain.Order) error) (domain.Order, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := pgScanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order: %w", err)
	}

	if err := mutate(&o); err != nil {
		return domain.Order{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders SET status = $1, delivery_crew_id = $2 WHERE id = $3`,
		int16(o.Status), o.DeliveryCrew, o.ID,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}

	orders := []domain.Order{o}
	if err := pgAttachItems(ctx, tx, orders); err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("commit order update: %w", err)
	}
	return orders[0], nil
}

// DeleteOrder relies on the ON DELETE CASCADE of order_items.
func (p *PostgresAdapter) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	return nil
}

// --- users & groups ---

func (p *PostgresAdapter) getUser(ctx context.Context, where string, arg any) (domain.User, error) {
	var u domain.User
	err := p.pool.QueryRow(ctx,
		`SELECT id, username, email FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: user %v", domain.ErrNotFound, arg)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (p *PostgresAdapter) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return p.getUser(ctx, "id = $1", id)
}

func (p *PostgresAdapter) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return p.getUser(ctx, "username = $1", username)
}

func (p *PostgresAdapter) UserGroups(ctx context.Context, userID int64) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT g.name FROM role_groups g
		JOIN user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = $1 ORDER BY g.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user groups: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan groups: %w", err)
	}
	return names, nil
}

func (p *PostgresAdapter) ListGroupMembers(ctx context.Context, group string) ([]domain.User, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT u.id, u.username, u.email FROM users u
		JOIN user_groups ug ON ug.user_id = u.id
		JOIN role_groups g ON g.id = ug.group_id
		WHERE g.name = $1 ORDER BY u.id`, group)
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

func (p *PostgresAdapter) AddGroupMember(ctx context.Context, group string, userID int64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO user_groups (user_id, group_id)
		SELECT $1, id FROM role_groups WHERE name = $2
		ON CONFLICT DO NOTHING`, userID, group)
	if err != nil {
		return fmt.Errorf("insert group member: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) RemoveGroupMember(ctx context.Context, group string, userID int64) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM user_groups ug USING role_groups g
		WHERE g.id = ug.group_id AND ug.user_id = $1 AND g.name = $2`, userID, group)
	if err != nil {
		return false, fmt.Errorf("delete group member: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresAdapter) EnsureGroups(ctx context.Context, groups []string) error {
	for _, g := range groups {
		_, err := p.pool.Exec(ctx, `INSERT INTO role_groups (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, g)
		if err != nil {
			return fmt.Errorf("ensure group %q: %w", g, err)
		}
	}
	return nil
}

// --- tokens ---

func (p *PostgresAdapter) IssueToken(ctx context.Context, userID int64) (string, error) {
	token := newToken()
	if _, err := p.pool.Exec(ctx,
		`INSERT INTO auth_tokens (token, user_id) VALUES ($1, $2)`, token, userID); err != nil {
		return "", fmt.Errorf("insert token: %w", err)
	}
	return token, nil
}

func (p *PostgresAdapter) ResolveToken(ctx context.Context, token string) (int64, error) {
	var userID int64
	err := p.pool.QueryRow(ctx, `SELECT user_id FROM auth_tokens WHERE token = $1`, token).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	if err != nil {
		return 0, fmt.Errorf("query token: %w", err)
	}
	return userID, nil
}
