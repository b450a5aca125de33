package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/little-lemon/internal/core/domain"
)

// Money is rendered as a fixed two-decimal string.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type menuItemRequest struct {
	Title     *string          `json:"title"`
	Price     *decimal.Decimal `json:"price"`
	Inventory *int             `json:"inventory"`
}

type menuItemResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Price     string `json:"price"`
	Inventory int    `json:"inventory"`
}

func toMenuItem(m domain.MenuItem) menuItemResponse {
	return menuItemResponse{
		ID:        m.ID,
		Title:     m.Title,
		Price:     money(m.Price),
		Inventory: m.Inventory,
	}
}

type cartLineRequest struct {
	MenuItem int64 `json:"menuitem"`
	Quantity int   `json:"quantity"`
}

type cartLineResponse struct {
	ID        int64  `json:"id"`
	User      int64  `json:"user"`
	MenuItem  int64  `json:"menuitem"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Price     string `json:"price"`
}

func toCartLine(l domain.CartLine) cartLineResponse {
	return cartLineResponse{
		ID:        l.ID,
		User:      l.UserID,
		MenuItem:  l.MenuItemID,
		Quantity:  l.Quantity,
		UnitPrice: money(l.UnitPrice),
		Price:     money(l.Price),
	}
}

type orderItemResponse struct {
	ID        int64  `json:"id"`
	Order     int64  `json:"order"`
	MenuItem  int64  `json:"menuitem"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Price     string `json:"price"`
}

type orderResponse struct {
	ID           int64               `json:"id"`
	User         int64               `json:"user"`
	DeliveryCrew *int64              `json:"delivery_crew"`
	Status       int                 `json:"status"`
	Total        string              `json:"total"`
	Date         time.Time           `json:"date"`
	OrderItems   []orderItemResponse `json:"order_items"`
}

func toOrder(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:        it.ID,
			Order:     it.OrderID,
			MenuItem:  it.MenuItemID,
			Quantity:  it.Quantity,
			UnitPrice: money(it.UnitPrice),
			Price:     money(it.Price),
		})
	}
	return orderResponse{
		ID:           o.ID,
		User:         o.UserID,
		DeliveryCrew: o.DeliveryCrew,
		Status:       int(o.Status),
		Total:        money(o.Total),
		Date:         o.Date,
		OrderItems:   items,
	}
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func toUser(u domain.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}

type groupMemberRequest struct {
	Username string `json:"username"`
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
