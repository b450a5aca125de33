package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/port"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

var _ port.DatabaseRepository = (*MySQLAdapter)(nil)

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// --- cart ---

func (m *MySQLAdapter) AddCartLine(ctx context.Context, line domain.CartLine) (domain.CartLine, error) {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO cart (user_id, menuitem_id, quantity, unit_price, price)
		VALUES (?, ?, ?, ?, ?)`,
		line.UserID, line.MenuItemID, line.Quantity, line.UnitPrice, line.Price,
	)
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("insert cart line: %w", err)
	}

	line.ID, err = result.LastInsertId()
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("cart line id: %w", err)
	}
	return line, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const cartColumns = `id, user_id, menuitem_id, quantity, unit_price, price`

func queryCartLines(ctx context.Context, q queryer, query string, args ...any) ([]domain.CartLine, error) {
	rows, err := q.QueryContext(ctx, query, args...)
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

func (m *MySQLAdapter) ListCartLines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	return queryCartLines(ctx, m.db, `SELECT `+cartColumns+` FROM cart WHERE user_id = ? ORDER BY id`, userID)
}

func (m *MySQLAdapter) ClearCart(ctx context.Context, userID int64) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM cart WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// --- orders ---

func (m *MySQLAdapter) PlaceOrder(ctx context.Context, userID int64, build port.BuildOrderFunc) (domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Locking read: a concurrent placement for the same user blocks here and
	// then sees the lines already deleted.
	lines, err := queryCartLines(ctx, tx,
		`SELECT `+cartColumns+` FROM cart WHERE user_id = ? ORDER BY id FOR UPDATE`, userID)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := build(lines)
	if err != nil {
		return domain.Order{}, err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (user_id, delivery_crew_id, status, total, date)
		VALUES (?, ?, ?, ?, ?)`,
		order.UserID, order.DeliveryCrew, int(order.Status), order.Total, order.Date,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	if order.ID, err = result.LastInsertId(); err != nil {
		return domain.Order{}, fmt.Errorf("order id: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		result, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, menuitem_id, quantity, unit_price, price)
			VALUES (?, ?, ?, ?, ?)`,
			item.OrderID, item.MenuItemID, item.Quantity, item.UnitPrice, item.Price,
		)
		if err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		if item.ID, err = result.LastInsertId(); err != nil {
			return domain.Order{}, fmt.Errorf("order item id: %w", err)
		}
	}

	ids := make([]any, 0, len(lines)+1)
	ids = append(ids, userID)
	for _, l := range lines {
		ids = append(ids, l.ID)
	}
	result, err = tx.ExecContext(ctx,
		`DELETE FROM cart WHERE user_id = ? AND id IN (`+placeholders(len(lines))+`)`, ids...)
	if err != nil {
		return domain.Order{}, fmt.Errorf("delete cart lines: %w", err)
	}
	if n, _ := result.RowsAffected(); n != int64(len(lines)) {
		return domain.Order{}, fmt.Errorf("delete cart lines: removed %d of %d", n, len(lines))
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit order: %w", err)
	}
	return order, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

const orderColumns = `id, user_id, delivery_crew_id, status, total, date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o      domain.Order
		crew   sql.NullInt64
		status int
	)
	if err := row.Scan(&o.ID, &o.UserID, &crew, &status, &o.Total, &o.Date); err != nil {
		return domain.Order{}, err
	}
	if crew.Valid {
		o.DeliveryCrew = &crew.Int64
	}
	o.Status = domain.OrderStatus(status)
	o.Items = []domain.OrderItem{}
	return o, nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.DeliveryCrewID != 0 {
		where = append(where, "delivery_crew_id = ?")
		args = append(args, filter.DeliveryCrewID)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, filter.Page.Limit(), filter.Page.Offset())

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := m.attachItems(ctx, m.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (m *MySQLAdapter) attachItems(ctx context.Context, q queryer, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[int64]int, len(orders))
	ids := make([]any, 0, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		ids = append(ids, o.ID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, menuitem_id, quantity, unit_price, price
		FROM order_items WHERE order_id IN (`+placeholders(len(ids))+`) ORDER BY id`, ids...)
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

func (m *MySQLAdapter) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	o, err := scanOrder(m.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", err)
	}

	orders := []domain.Order{o}
	if err := m.attachItems(ctx, m.db, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (m *MySQLAdapter) UpdateOrder(ctx context.Context, id int64, mutate func(*domain.Order) error) (domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	o, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order: %w", err)
	}

	if err := mutate(&o); err != nil {
		return domain.Order{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, delivery_crew_id = ? WHERE id = ?`,
		int(o.Status), o.DeliveryCrew, o.ID,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}

	orders := []domain.Order{o}
	if err := m.attachItems(ctx, tx, orders); err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit order update: %w", err)
	}
	return orders[0], nil
}

func (m *MySQLAdapter) DeleteOrder(ctx context.Context, id int64) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, id); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}

	return tx.Commit()
}
