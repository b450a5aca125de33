package port

import (
	"context"

	"github.com/rl1809/little-lemon/internal/core/domain"
)

type MenuRepository interface {
	// ListMenuItems returns one page of items matching q
	ListMenuItems(ctx context.Context, q domain.MenuQuery) ([]domain.MenuItem, error)

	// GetMenuItem returns domain.ErrNotFound when id is unknown
	GetMenuItem(ctx context.Context, id int64) (domain.MenuItem, error)

	CreateMenuItem(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error)

	// UpdateMenuItem overwrites every writable field of item.ID
	UpdateMenuItem(ctx context.Context, item domain.MenuItem) error

	DeleteMenuItem(ctx context.Context, id int64) error
}

type CartRepository interface {
	AddCartLine(ctx context.Context, line domain.CartLine) (domain.CartLine, error)

	ListCartLines(ctx context.Context, userID int64) ([]domain.CartLine, error)

	// ClearCart deletes every line owned by userID; clearing an empty cart is not an error
	ClearCart(ctx context.Context, userID int64) error
}

// BuildOrderFunc turns the locked cart lines of a user into a new order.
type BuildOrderFunc func(lines []domain.CartLine) (domain.Order, error)

type OrderRepository interface {
	// PlaceOrder locks the cart lines of userID, builds the order from them,
	// persists order and items and deletes the consumed lines in one
	// transaction. Nothing is written when build fails.
	PlaceOrder(ctx context.Context, userID int64, build BuildOrderFunc) (domain.Order, error)

	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	// GetOrder returns the order with its items, or domain.ErrNotFound
	GetOrder(ctx context.Context, id int64) (domain.Order, error)

	// UpdateOrder locks the order row, applies mutate and persists status and
	// delivery crew. The stored order is unchanged when mutate fails.
	UpdateOrder(ctx context.Context, id int64, mutate func(*domain.Order) error) (domain.Order, error)

	// DeleteOrder removes the order and its items
	DeleteOrder(ctx context.Context, id int64) error
}

type UserRepository interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)

	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// UserGroups lists the group names userID belongs to
	UserGroups(ctx context.Context, userID int64) ([]string, error)

	ListGroupMembers(ctx context.Context, group string) ([]domain.User, error)

	// AddGroupMember is a no-op when the membership already exists
	AddGroupMember(ctx context.Context, group string, userID int64) error

	// RemoveGroupMember reports whether a membership was removed
	RemoveGroupMember(ctx context.Context, group string, userID int64) (bool, error)

	// EnsureGroups creates any missing group rows
	EnsureGroups(ctx context.Context, groups []string) error
}

type DatabaseRepository interface {
	MenuRepository
	CartRepository
	OrderRepository
	UserRepository
	TokenStore

	Ping(ctx context.Context) error
}
