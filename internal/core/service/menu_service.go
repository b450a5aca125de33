package service

import (
	"context"
	"strings"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/core/policy"
	"github.com/rl1809/little-lemon/internal/port"
)

// MenuService is the catalog: open for reads, Manager-only for writes.
type MenuService struct {
	menu port.MenuRepository
}

func NewMenuService(menu port.MenuRepository) *MenuService {
	return &MenuService{menu: menu}
}

func (s *MenuService) List(ctx context.Context, p domain.Principal, q domain.MenuQuery) ([]domain.MenuItem, error) {
	if err := policy.Require(p, policy.Read, policy.IsManagerOrReadOnly); err != nil {
		return nil, err
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Page = q.Page.Normalize()
	return s.menu.ListMenuItems(ctx, q)
}

func (s *MenuService) Get(ctx context.Context, p domain.Principal, id int64) (domain.MenuItem, error) {
	if err := policy.Require(p, policy.Read, policy.IsManagerOrReadOnly); err != nil {
		return domain.MenuItem{}, err
	}
	return s.menu.GetMenuItem(ctx, id)
}

func (s *MenuService) Create(ctx context.Context, p domain.Principal, item domain.MenuItem) (domain.MenuItem, error) {
	if err := policy.Require(p, policy.Write, policy.IsManagerOrReadOnly); err != nil {
		return domain.MenuItem{}, err
	}
	item.Title = strings.TrimSpace(item.Title)
	if err := item.Validate(); err != nil {
		return domain.MenuItem{}, err
	}
	return s.menu.CreateMenuItem(ctx, item)
}

// Update replaces every writable field of item.ID.
func (s *MenuService) Update(ctx context.Context, p domain.Principal, item domain.MenuItem) (domain.MenuItem, error) {
	if err := policy.Require(p, policy.Write, policy.IsManagerOrReadOnly); err != nil {
		return domain.MenuItem{}, err
	}
	if _, err := s.menu.GetMenuItem(ctx, item.ID); err != nil {
		return domain.MenuItem{}, err
	}
	item.Title = strings.TrimSpace(item.Title)
	if err := item.Validate(); err != nil {
		return domain.MenuItem{}, err
	}
	if err := s.menu.UpdateMenuItem(ctx, item); err != nil {
		return domain.MenuItem{}, err
	}
	return item, nil
}

func (s *MenuService) Patch(ctx context.Context, p domain.Principal, id int64, patch domain.MenuItemPatch) (domain.MenuItem, error) {
	if err := policy.Require(p, policy.Write, policy.IsManagerOrReadOnly); err != nil {
		return domain.MenuItem{}, err
	}
	current, err := s.menu.GetMenuItem(ctx, id)
	if err != nil {
		return domain.MenuItem{}, err
	}
	item := patch.Apply(current)
	item.Title = strings.TrimSpace(item.Title)
	if err := item.Validate(); err != nil {
		return domain.MenuItem{}, err
	}
	if err := s.menu.UpdateMenuItem(ctx, item); err != nil {
		return domain.MenuItem{}, err
	}
	return item, nil
}

// Delete removes a menu item. Order items keep their price snapshot and may
// reference the removed id.
func (s *MenuService) Delete(ctx context.Context, p domain.Principal, id int64) error {
	if err := policy.Require(p, policy.Write, policy.IsManagerOrReadOnly); err != nil {
		return err
	}
	return s.menu.DeleteMenuItem(ctx, id)
}
