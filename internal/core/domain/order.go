package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the two-state delivery marker of an order.
type OrderStatus int

const (
	OrderStatusPending   OrderStatus = 0
	OrderStatusDelivered OrderStatus = 1
)

func (s OrderStatus) Valid() bool {
	return s == OrderStatusPending || s == OrderStatusDelivered
}

func (s OrderStatus) String() string {
	if s == OrderStatusDelivered {
		return "delivered"
	}
	return "pending"
}

// CanTransitionTo reports whether an order may move from s to next.
// Status only moves forward; re-applying the current status is a no-op.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return next.Valid() && next >= s
}

// ParseOrderStatus decodes a JSON status value. Integers 0/1 are canonical;
// booleans and the strings "0"/"1" are accepted for older clients.
func ParseOrderStatus(raw json.RawMessage) (OrderStatus, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStatus, raw)
	}

	switch val := v.(type) {
	case bool:
		if val {
			return OrderStatusDelivered, nil
		}
		return OrderStatusPending, nil
	case json.Number:
		f, err := val.Float64()
		if err == nil && (f == 0 || f == 1) {
			return OrderStatus(int(f)), nil
		}
	case string:
		switch val {
		case "0":
			return OrderStatusPending, nil
		case "1":
			return OrderStatusDelivered, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidStatus, raw)
}

// Order is the aggregate created from a cart. Items and Total never change
// after creation.
type Order struct {
	ID           int64
	UserID       int64
	DeliveryCrew *int64
	Status       OrderStatus
	Total        decimal.Decimal
	Date         time.Time
	Items        []OrderItem
}

// OrderItem is an immutable snapshot of a cart line.
type OrderItem struct {
	ID         int64
	OrderID    int64
	MenuItemID int64
	Quantity   int
	UnitPrice  decimal.Decimal
	Price      decimal.Decimal
}

// NewOrderFromCart snapshots lines into a pending order owned by userID.
func NewOrderFromCart(userID int64, lines []CartLine, now time.Time) (Order, error) {
	if len(lines) == 0 {
		return Order{}, ErrEmptyCart
	}

	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, OrderItem{
			MenuItemID: l.MenuItemID,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
			Price:      l.Price,
		})
	}

	total := CartTotal(lines)
	if total.GreaterThan(MaxLineTotal) {
		return Order{}, fmt.Errorf("%w: order total exceeds %s", ErrValidation, MaxLineTotal.StringFixed(2))
	}

	return Order{
		UserID: userID,
		Status: OrderStatusPending,
		Total:  total,
		Date:   now.UTC(),
		Items:  items,
	}, nil
}

// SetStatus moves the order to next, rejecting backwards transitions.
func (o *Order) SetStatus(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: cannot move order %d from %s to %s", ErrInvalidStatus, o.ID, o.Status, next)
	}
	o.Status = next
	return nil
}

// VisibleTo applies the role filter used by order listing.
func (o Order) VisibleTo(p Principal) bool {
	switch p.Role {
	case RoleManager:
		return true
	case RoleDeliveryCrew:
		return o.DeliveryCrew != nil && *o.DeliveryCrew == p.UserID
	case RoleCustomer:
		return o.UserID == p.UserID
	default:
		return false
	}
}

// OrderFilter narrows an order listing. Zero fields match everything.
type OrderFilter struct {
	UserID         int64
	DeliveryCrewID int64
	Page           Page
}

// FilterFor returns the listing filter for principal p.
func FilterFor(p Principal, page Page) OrderFilter {
	f := OrderFilter{Page: page}
	switch p.Role {
	case RoleDeliveryCrew:
		f.DeliveryCrewID = p.UserID
	case RoleCustomer:
		f.UserID = p.UserID
	}
	return f
}

// OrderPatch holds the raw fields of a partial order update, keyed by their
// JSON names.
type OrderPatch map[string]json.RawMessage

const (
	OrderFieldStatus       = "status"
	OrderFieldDeliveryCrew = "delivery_crew"
)

func (p OrderPatch) Has(field string) bool {
	_, ok := p[field]
	return ok
}

// DeliveryCrewID decodes delivery_crew; a JSON null unassigns the order.
func (p OrderPatch) DeliveryCrewID() (*int64, error) {
	raw := p[OrderFieldDeliveryCrew]
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: delivery_crew must be a user id or null", ErrValidation)
	}
	return &id, nil
}
