package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/port"
)

// userFactory inserts a user; users are provisioned outside the repository
// port, so each backend supplies its own.
type userFactory func(t *testing.T, username string) domain.User

// runRepositorySuite exercises a DatabaseRepository. Names are suffixed so
// the suite can run against a shared database.
func runRepositorySuite(t *testing.T, repo port.DatabaseRepository, newUser userFactory) {
	ctx := context.Background()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	require.NoError(t, repo.EnsureGroups(ctx, domain.Groups))

	price := decimal.RequireFromString
	menuItem := func(t *testing.T, title, p string) domain.MenuItem {
		item, err := repo.CreateMenuItem(ctx, domain.MenuItem{Title: title + " " + suffix, Price: price(p), Inventory: 5})
		require.NoError(t, err)
		return item
	}
	cartLine := func(t *testing.T, user domain.User, item domain.MenuItem, qty int) domain.CartLine {
		line, err := domain.NewCartLine(user.ID, item, qty)
		require.NoError(t, err)
		line, err = repo.AddCartLine(ctx, line)
		require.NoError(t, err)
		return line
	}
	build := func(userID int64) port.BuildOrderFunc {
		return func(lines []domain.CartLine) (domain.Order, error) {
			return domain.NewOrderFromCart(userID, lines, time.Now())
		}
	}

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})

	t.Run("MenuCRUD", func(t *testing.T) {
		item := menuItem(t, "Bruschetta", "7.50")
		assert.NotZero(t, item.ID)

		got, err := repo.GetMenuItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.Title, got.Title)
		assert.Equal(t, "7.50", got.Price.StringFixed(2))
		assert.Equal(t, 5, got.Inventory)

		got.Price = price("8.25")
		require.NoError(t, repo.UpdateMenuItem(ctx, got))
		got, err = repo.GetMenuItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "8.25", got.Price.StringFixed(2))

		require.NoError(t, repo.DeleteMenuItem(ctx, item.ID))
		_, err = repo.GetMenuItem(ctx, item.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteMenuItem(ctx, item.ID), domain.ErrNotFound)
		assert.ErrorIs(t, repo.UpdateMenuItem(ctx, got), domain.ErrNotFound)
	})

	t.Run("MenuSearchOrdering", func(t *testing.T) {
		tag := "srch" + suffix
		for title, p := range map[string]string{"Lemon Cake": "6.00", "Lemonade": "3.00", "Pasta": "11.00"} {
			_, err := repo.CreateMenuItem(ctx, domain.MenuItem{Title: title + " " + tag, Price: price(p)})
			require.NoError(t, err)
		}

		titles := func(q domain.MenuQuery) []string {
			items, err := repo.ListMenuItems(ctx, q)
			require.NoError(t, err)
			var out []string
			for _, it := range items {
				out = append(out, it.Title)
			}
			return out
		}

		assert.Equal(t,
			[]string{"Lemonade " + tag, "Lemon Cake " + tag, "Pasta " + tag},
			titles(domain.MenuQuery{Search: tag, Ordering: domain.MenuOrderByPrice}))
		assert.Equal(t,
			[]string{"Pasta " + tag},
			titles(domain.MenuQuery{Search: tag, Ordering: domain.MenuOrderByPriceDesc, Page: domain.Page{Number: 1, Size: 1}}))
		assert.Len(t, titles(domain.MenuQuery{Search: strings.ToUpper(tag)}), 3)
		assert.Empty(t, titles(domain.MenuQuery{Search: "100%_" + tag}))
	})

	t.Run("CartLines", func(t *testing.T) {
		user := newUser(t, "cart-"+suffix)
		item := menuItem(t, "Soup", "4.00")

		line := cartLine(t, user, item, 3)
		assert.NotZero(t, line.ID)

		lines, err := repo.ListCartLines(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, "12.00", lines[0].Price.StringFixed(2))
		assert.Equal(t, "4.00", lines[0].UnitPrice.StringFixed(2))

		require.NoError(t, repo.ClearCart(ctx, user.ID))
		lines, err = repo.ListCartLines(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, lines)
	})

	t.Run("DeleteMenuItemRemovesCartLines", func(t *testing.T) {
		user := newUser(t, "cascade-"+suffix)
		item := menuItem(t, "Olives", "3.00")
		cartLine(t, user, item, 1)

		require.NoError(t, repo.DeleteMenuItem(ctx, item.ID))
		lines, err := repo.ListCartLines(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, lines)
	})

	t.Run("PlaceOrder", func(t *testing.T) {
		user := newUser(t, "place-"+suffix)
		salad := menuItem(t, "Greek Salad", "5.00")
		tea := menuItem(t, "Tea", "1.10")
		cartLine(t, user, salad, 2)
		cartLine(t, user, tea, 3)

		order, err := repo.PlaceOrder(ctx, user.ID, build(user.ID))
		require.NoError(t, err)
		assert.NotZero(t, order.ID)
		assert.Equal(t, "13.30", order.Total.StringFixed(2))
		require.Len(t, order.Items, 2)
		for _, it := range order.Items {
			assert.NotZero(t, it.ID)
			assert.Equal(t, order.ID, it.OrderID)
		}

		lines, err := repo.ListCartLines(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, lines)

		got, err := repo.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.UserID)
		assert.Equal(t, domain.OrderStatusPending, got.Status)
		assert.Nil(t, got.DeliveryCrew)
		assert.Equal(t, "13.30", got.Total.StringFixed(2))
		assert.WithinDuration(t, order.Date, got.Date, time.Second)
		require.Len(t, got.Items, 2)
		assert.Equal(t, "10.00", got.Items[0].Price.StringFixed(2))
		assert.Equal(t, "3.30", got.Items[1].Price.StringFixed(2))

		_, err = repo.PlaceOrder(ctx, user.ID, build(user.ID))
		assert.ErrorIs(t, err, domain.ErrEmptyCart)
	})

	t.Run("PlaceOrderRollsBack", func(t *testing.T) {
		user := newUser(t, "rollback-"+suffix)
		cartLine(t, user, menuItem(t, "Pasta", "11.00"), 1)

		boom := errors.New("boom")
		_, err := repo.PlaceOrder(ctx, user.ID, func([]domain.CartLine) (domain.Order, error) {
			return domain.Order{}, boom
		})
		assert.ErrorIs(t, err, boom)

		lines, err := repo.ListCartLines(ctx, user.ID)
		require.NoError(t, err)
		assert.Len(t, lines, 1)

		orders, err := repo.ListOrders(ctx, domain.OrderFilter{UserID: user.ID})
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("OrdersUpdateFilterDelete", func(t *testing.T) {
		owner := newUser(t, "owner-"+suffix)
		crew := newUser(t, "crew-"+suffix)
		item := menuItem(t, "Risotto", "9.00")

		cartLine(t, owner, item, 1)
		first, err := repo.PlaceOrder(ctx, owner.ID, build(owner.ID))
		require.NoError(t, err)
		cartLine(t, owner, item, 2)
		second, err := repo.PlaceOrder(ctx, owner.ID, build(owner.ID))
		require.NoError(t, err)

		updated, err := repo.UpdateOrder(ctx, second.ID, func(o *domain.Order) error {
			o.DeliveryCrew = &crew.ID
			o.Total = decimal.Zero
			return o.SetStatus(domain.OrderStatusDelivered)
		})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusDelivered, updated.Status)
		require.Len(t, updated.Items, 1)

		got, err := repo.GetOrder(ctx, second.ID)
		require.NoError(t, err)
		require.NotNil(t, got.DeliveryCrew)
		assert.Equal(t, crew.ID, *got.DeliveryCrew)
		assert.Equal(t, "18.00", got.Total.StringFixed(2))

		_, err = repo.UpdateOrder(ctx, second.ID, func(o *domain.Order) error {
			return o.SetStatus(domain.OrderStatusPending)
		})
		assert.ErrorIs(t, err, domain.ErrInvalidStatus)
		got, err = repo.GetOrder(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusDelivered, got.Status)

		mine, err := repo.ListOrders(ctx, domain.OrderFilter{UserID: owner.ID})
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, first.ID, mine[0].ID)
		assert.Len(t, mine[1].Items, 1)

		assigned, err := repo.ListOrders(ctx, domain.OrderFilter{DeliveryCrewID: crew.ID})
		require.NoError(t, err)
		require.Len(t, assigned, 1)
		assert.Equal(t, second.ID, assigned[0].ID)

		paged, err := repo.ListOrders(ctx, domain.OrderFilter{UserID: owner.ID, Page: domain.Page{Number: 2, Size: 1}})
		require.NoError(t, err)
		require.Len(t, paged, 1)
		assert.Equal(t, second.ID, paged[0].ID)

		require.NoError(t, repo.DeleteOrder(ctx, first.ID))
		_, err = repo.GetOrder(ctx, first.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteOrder(ctx, first.ID), domain.ErrNotFound)

		_, err = repo.UpdateOrder(ctx, first.ID, func(*domain.Order) error { return nil })
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Groups", func(t *testing.T) {
		user := newUser(t, "member-"+suffix)

		got, err := repo.GetUserByUsername(ctx, user.Username)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		_, err = repo.GetUserByUsername(ctx, "missing-"+suffix)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = repo.GetUser(ctx, -1)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, repo.AddGroupMember(ctx, domain.GroupDeliveryCrew, user.ID))
		require.NoError(t, repo.AddGroupMember(ctx, domain.GroupDeliveryCrew, user.ID))

		groups, err := repo.UserGroups(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{domain.GroupDeliveryCrew}, groups)

		members, err := repo.ListGroupMembers(ctx, domain.GroupDeliveryCrew)
		require.NoError(t, err)
		var found bool
		for _, m := range members {
			found = found || m.ID == user.ID
		}
		assert.True(t, found)

		removed, err := repo.RemoveGroupMember(ctx, domain.GroupDeliveryCrew, user.ID)
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = repo.RemoveGroupMember(ctx, domain.GroupDeliveryCrew, user.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		groups, err = repo.UserGroups(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	t.Run("Tokens", func(t *testing.T) {
		user := newUser(t, "token"+suffix)

		token, err := repo.IssueToken(ctx, user.ID)
		require.NoError(t, err)
		assert.Len(t, token, 40)

		other, err := repo.IssueToken(ctx, user.ID)
		require.NoError(t, err)
		assert.NotEqual(t, token, other)

		id, err := repo.ResolveToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, id)

		_, err = repo.ResolveToken(ctx, "0000000000000000000000000000000000000000")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}
