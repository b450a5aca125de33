package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	OrderPlaced  OrderEventType = "order.placed"
	OrderUpdated OrderEventType = "order.updated"
	OrderDeleted OrderEventType = "order.deleted"
)

// OrderEvent is published after an order change has been committed.
type OrderEvent struct {
	ID           string          `json:"id"`
	Type         OrderEventType  `json:"type"`
	OrderID      int64           `json:"order_id"`
	UserID       int64           `json:"user_id"`
	ActorID      int64           `json:"actor_id"`
	DeliveryCrew *int64          `json:"delivery_crew"`
	Status       OrderStatus     `json:"status"`
	Total        decimal.Decimal `json:"total"`
	OccurredAt   time.Time       `json:"occurred_at"`
}
