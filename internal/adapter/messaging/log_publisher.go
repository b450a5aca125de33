package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/port"
)

// LogPublisher records events in the service log. Used when no brokers are
// configured.
type LogPublisher struct {
	log *zap.Logger
}

var _ port.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events")}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.OrderEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Int64("order_id", event.OrderID),
		zap.Int64("user_id", event.UserID),
		zap.Int64("actor_id", event.ActorID),
		zap.Stringer("status", event.Status),
		zap.String("total", event.Total.StringFixed(2)),
	}
	if event.DeliveryCrew != nil {
		fields = append(fields, zap.Int64("delivery_crew", *event.DeliveryCrew))
	}
	p.log.Info("order event", fields...)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
