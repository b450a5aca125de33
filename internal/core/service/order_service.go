package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/core/policy"
	"github.com/rl1809/little-lemon/internal/port"
	"github.com/rl1809/little-lemon/internal/telemetry"
)

const defaultCheckoutLockTTL = 10 * time.Second

type orderStore interface {
	port.OrderRepository
	GetUser(ctx context.Context, id int64) (domain.User, error)
}

type OrderServiceConfig struct {
	// CrewAssignedOnly limits delivery crew status updates to orders assigned to them
	CrewAssignedOnly bool
	CheckoutLockTTL  time.Duration
	EventQueueSize   int
}

type OrderService struct {
	db         orderStore
	cache      port.CacheRepository
	eventQueue chan domain.OrderEvent
	cfg        OrderServiceConfig

	// mu guards closed; publishers hold it shared for the send
	mu     sync.RWMutex
	closed bool

	metrics *telemetry.Metrics
	log     *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewOrderService(db orderStore, cache port.CacheRepository, cfg OrderServiceConfig, tel *telemetry.Provider, metrics *telemetry.Metrics) *OrderService {
	if cfg.CheckoutLockTTL <= 0 {
		cfg.CheckoutLockTTL = defaultCheckoutLockTTL
	}
	return &OrderService{
		db:         db,
		cache:      cache,
		eventQueue: make(chan domain.OrderEvent, cfg.EventQueueSize),
		cfg:        cfg,
		metrics:    metrics,
		log:        tel.Logger,
		tracer:     tel.Tracer,
		now:        time.Now,
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// PlaceOrder converts the caller's cart into an order. Either the order and
// all of its items exist and the cart is empty, or nothing changed.
func (s *OrderService) PlaceOrder(ctx context.Context, p domain.Principal, idempotencyKey string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.PlaceOrder",
		trace.WithAttributes(attribute.Int64("user.id", p.UserID)),
	)
	defer span.End()

	if err := policy.Require(p, policy.Write, policy.IsAuthenticated, policy.IsCustomer); err != nil {
		return domain.Order{}, fail(span, err)
	}

	if idempotencyKey != "" {
		ok, err := s.cache.SetIdempotency(ctx, fmt.Sprintf("order:%d:%s", p.UserID, idempotencyKey))
		if err != nil {
			return domain.Order{}, fail(span, fmt.Errorf("idempotency check failed: %w", err))
		}
		if !ok {
			s.recordPlacement(ctx, "duplicate")
			return domain.Order{}, fail(span, domain.ErrDuplicateRequest)
		}
	}

	release, ok, err := s.cache.AcquireLock(ctx, fmt.Sprintf("checkout:%d", p.UserID), s.cfg.CheckoutLockTTL)
	if err != nil {
		return domain.Order{}, fail(span, fmt.Errorf("checkout lock: %w", err))
	}
	if !ok {
		s.recordPlacement(ctx, "busy")
		return domain.Order{}, fail(span, fmt.Errorf("%w: an order is already being placed for this cart", domain.ErrDuplicateRequest))
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release checkout lock", zap.Int64("user_id", p.UserID), zap.Error(err))
		}
	}()

	order, err := s.db.PlaceOrder(ctx, p.UserID, func(lines []domain.CartLine) (domain.Order, error) {
		return domain.NewOrderFromCart(p.UserID, lines, s.now())
	})
	if errors.Is(err, domain.ErrEmptyCart) {
		s.recordPlacement(ctx, "empty_cart")
		return domain.Order{}, fail(span, err)
	}
	if err != nil {
		s.recordPlacement(ctx, "error")
		return domain.Order{}, fail(span, fmt.Errorf("place order: %w", err))
	}

	s.recordPlacement(ctx, "ok")
	s.metrics.OrderTotalCents.Record(ctx, order.Total.Shift(2).IntPart())
	span.SetAttributes(attribute.Int64("order.id", order.ID), attribute.Int("order.items", len(order.Items)))
	span.SetStatus(codes.Ok, "")

	s.log.Info("order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", p.UserID),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.Total.StringFixed(2)),
	)
	s.publish(ctx, domain.OrderPlaced, p, order)

	return order, nil
}

func (s *OrderService) recordPlacement(ctx context.Context, status string) {
	s.metrics.OrdersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// ListOrders returns the orders visible to p: all of them for a Manager,
// assigned ones for delivery crew and owned ones for a customer.
func (s *OrderService) ListOrders(ctx context.Context, p domain.Principal, page domain.Page) ([]domain.Order, error) {
	if err := policy.Require(p, policy.Read, policy.IsAuthenticated); err != nil {
		return nil, err
	}
	return s.db.ListOrders(ctx, domain.FilterFor(p, page.Normalize()))
}

// GetOrder applies the listing filter to a single order; orders outside the
// caller's view are reported as missing.
func (s *OrderService) GetOrder(ctx context.Context, p domain.Principal, id int64) (domain.Order, error) {
	if err := policy.Require(p, policy.Read, policy.IsAuthenticated); err != nil {
		return domain.Order{}, err
	}
	order, err := s.db.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.VisibleTo(p) {
		return domain.Order{}, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	return order, nil
}

// UpdateOrder applies patch on behalf of p. Managers may change status and
// delivery crew; delivery crew may only change status.
func (s *OrderService) UpdateOrder(ctx context.Context, p domain.Principal, id int64, patch domain.OrderPatch) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateOrder",
		trace.WithAttributes(
			attribute.Int64("order.id", id),
			attribute.String("principal.role", p.Role.String()),
		),
	)
	defer span.End()

	if err := policy.Require(p, policy.Write, policy.IsAuthenticated, policy.Any(policy.IsManager, policy.IsDeliveryCrew)); err != nil {
		return domain.Order{}, fail(span, err)
	}

	var (
		mutate func(*domain.Order) error
		err    error
	)
	if p.Role == domain.RoleManager {
		mutate, err = s.managerPatch(ctx, patch)
	} else {
		mutate, err = s.crewPatch(p, patch)
	}
	if err != nil {
		s.recordUpdate(ctx, p, "rejected")
		return domain.Order{}, fail(span, err)
	}

	order, err := s.db.UpdateOrder(ctx, id, mutate)
	if err != nil {
		s.recordUpdate(ctx, p, "rejected")
		return domain.Order{}, fail(span, err)
	}

	s.recordUpdate(ctx, p, "ok")
	s.log.Info("order updated",
		zap.Int64("order_id", order.ID),
		zap.Int64("actor_id", p.UserID),
		zap.Stringer("role", p.Role),
		zap.Stringer("status", order.Status),
	)
	s.publish(ctx, domain.OrderUpdated, p, order)

	return order, nil
}

func (s *OrderService) recordUpdate(ctx context.Context, p domain.Principal, outcome string) {
	s.metrics.OrdersUpdated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", p.Role.String()),
		attribute.String("outcome", outcome),
	))
}

// managerPatch accepts status and delivery_crew; other order fields are
// fixed at creation and ignored.
func (s *OrderService) managerPatch(ctx context.Context, patch domain.OrderPatch) (func(*domain.Order) error, error) {
	var status *domain.OrderStatus
	if patch.Has(domain.OrderFieldStatus) {
		st, err := domain.ParseOrderStatus(patch[domain.OrderFieldStatus])
		if err != nil {
			return nil, err
		}
		status = &st
	}

	setCrew := patch.Has(domain.OrderFieldDeliveryCrew)
	var crew *int64
	if setCrew {
		id, err := patch.DeliveryCrewID()
		if err != nil {
			return nil, err
		}
		if id != nil {
			_, err := s.db.GetUser(ctx, *id)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: delivery_crew user %d does not exist", domain.ErrValidation, *id)
			}
			if err != nil {
				return nil, err
			}
		}
		crew = id
	}

	return func(o *domain.Order) error {
		if status != nil {
			if err := o.SetStatus(*status); err != nil {
				return err
			}
		}
		if setCrew {
			o.DeliveryCrew = crew
		}
		return nil
	}, nil
}

func (s *OrderService) crewPatch(p domain.Principal, patch domain.OrderPatch) (func(*domain.Order) error, error) {
	if len(patch) != 1 || !patch.Has(domain.OrderFieldStatus) {
		return nil, fmt.Errorf("%w: delivery crew may only update status", domain.ErrInvalidStatus)
	}
	status, err := domain.ParseOrderStatus(patch[domain.OrderFieldStatus])
	if err != nil {
		return nil, err
	}

	return func(o *domain.Order) error {
		if s.cfg.CrewAssignedOnly && (o.DeliveryCrew == nil || *o.DeliveryCrew != p.UserID) {
			return fmt.Errorf("%w: order %d is not assigned to you", domain.ErrPermissionDenied, o.ID)
		}
		return o.SetStatus(status)
	}, nil
}

// DeleteOrder removes an order and its items. Manager only.
func (s *OrderService) DeleteOrder(ctx context.Context, p domain.Principal, id int64) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.DeleteOrder",
		trace.WithAttributes(attribute.Int64("order.id", id)),
	)
	defer span.End()

	if err := policy.Require(p, policy.Write, policy.IsAuthenticated, policy.IsManager); err != nil {
		return fail(span, err)
	}

	order, err := s.db.GetOrder(ctx, id)
	if err != nil {
		return fail(span, err)
	}
	if err := s.db.DeleteOrder(ctx, id); err != nil {
		return fail(span, err)
	}

	s.log.Info("order deleted", zap.Int64("order_id", id), zap.Int64("actor_id", p.UserID))
	s.publish(ctx, domain.OrderDeleted, p, order)
	return nil
}

// publish hands an event to the worker pool. Events are best effort: a
// cancelled request drops its event instead of blocking.
func (s *OrderService) publish(ctx context.Context, typ domain.OrderEventType, actor domain.Principal, order domain.Order) {
	event := domain.OrderEvent{
		ID:           uuid.NewString(),
		Type:         typ,
		OrderID:      order.ID,
		UserID:       order.UserID,
		ActorID:      actor.UserID,
		DeliveryCrew: order.DeliveryCrew,
		Status:       order.Status,
		Total:        order.Total,
		OccurredAt:   s.now().UTC(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped(ctx, typ, order.ID)
		return
	}

	select {
	case s.eventQueue <- event:
	case <-ctx.Done():
		s.dropped(ctx, typ, order.ID)
	}
}

func (s *OrderService) dropped(ctx context.Context, typ domain.OrderEventType, orderID int64) {
	s.metrics.EventsDropped.Add(context.WithoutCancel(ctx), 1)
	s.log.Warn("order event dropped", zap.String("type", string(typ)), zap.Int64("order_id", orderID))
}

func (s *OrderService) GetEventQueue() <-chan domain.OrderEvent {
	return s.eventQueue
}

// Close stops the event queue. Changes committed afterwards still succeed,
// their events are dropped. Safe to call more than once.
func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.eventQueue)
}
