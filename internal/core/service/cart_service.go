package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/core/policy"
	"github.com/rl1809/little-lemon/internal/port"
	"github.com/rl1809/little-lemon/internal/telemetry"
)

type cartStore interface {
	port.MenuRepository
	port.CartRepository
}

type CartService struct {
	db      cartStore
	metrics *telemetry.Metrics
	log     *zap.Logger
}

func NewCartService(db cartStore, metrics *telemetry.Metrics, log *zap.Logger) *CartService {
	return &CartService{db: db, metrics: metrics, log: log}
}

// AddLine prices quantity units of menuItemID at the current catalog price
// and stores the line in the caller's cart. Inventory is not reserved.
func (s *CartService) AddLine(ctx context.Context, p domain.Principal, menuItemID int64, quantity int) (domain.CartLine, error) {
	if err := policy.Require(p, policy.Write, policy.IsAuthenticated, policy.IsCustomer); err != nil {
		return domain.CartLine{}, err
	}
	if quantity <= 0 {
		return domain.CartLine{}, fmt.Errorf("%w: quantity must be a positive integer", domain.ErrValidation)
	}

	item, err := s.db.GetMenuItem(ctx, menuItemID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.CartLine{}, fmt.Errorf("%w: menu item %d", domain.ErrNotFound, menuItemID)
	}
	if err != nil {
		return domain.CartLine{}, err
	}

	line, err := domain.NewCartLine(p.UserID, item, quantity)
	if err != nil {
		return domain.CartLine{}, err
	}

	line, err = s.db.AddCartLine(ctx, line)
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("add cart line: %w", err)
	}

	s.metrics.CartLinesAdded.Add(ctx, 1)
	s.log.Debug("cart line added",
		zap.Int64("user_id", p.UserID),
		zap.Int64("menuitem_id", menuItemID),
		zap.Int("quantity", quantity),
		zap.String("price", line.Price.StringFixed(2)),
	)
	return line, nil
}

func (s *CartService) ListLines(ctx context.Context, p domain.Principal) ([]domain.CartLine, error) {
	if err := policy.Require(p, policy.Read, policy.IsAuthenticated, policy.IsCustomer); err != nil {
		return nil, err
	}
	return s.db.ListCartLines(ctx, p.UserID)
}

func (s *CartService) ClearCart(ctx context.Context, p domain.Principal) error {
	if err := policy.Require(p, policy.Write, policy.IsAuthenticated, policy.IsCustomer); err != nil {
		return err
	}
	return s.db.ClearCart(ctx, p.UserID)
}
