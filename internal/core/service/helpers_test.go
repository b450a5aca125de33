package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/little-lemon/internal/adapter/storage"
	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/telemetry"
)

// mockCacheRepo records idempotency keys and can be told to report the
// checkout lock as busy.
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
	lockBusy       bool
	released       int
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lockBusy {
		return nil, false, nil
	}
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.released++
		return nil
	}, true, nil
}

type env struct {
	db       *storage.MemoryAdapter
	cache    *storage.MemoryCache
	tel      *telemetry.Provider
	metrics  *telemetry.Metrics
	manager  domain.Principal
	crew     domain.Principal
	customer domain.Principal
	other    domain.Principal
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	db := storage.NewMemoryAdapter()
	require.NoError(t, db.EnsureGroups(ctx, domain.Groups))

	tel := telemetry.Nop()
	e := &env{
		db:      db,
		cache:   storage.NewMemoryCache(),
		tel:     tel,
		metrics: telemetry.MustNewMetrics(tel.Meter),
	}

	principal := func(name string, role domain.Role, group string) domain.Principal {
		u := db.CreateUser(name, name+"@littlelemon.test")
		if group != "" {
			require.NoError(t, db.AddGroupMember(ctx, group, u.ID))
		}
		return domain.Principal{UserID: u.ID, Username: u.Username, Role: role}
	}
	e.manager = principal("manager", domain.RoleManager, domain.GroupManager)
	e.crew = principal("crew", domain.RoleDeliveryCrew, domain.GroupDeliveryCrew)
	e.customer = principal("customer", domain.RoleCustomer, "")
	e.other = principal("other", domain.RoleCustomer, "")
	return e
}

func (e *env) orderService(t *testing.T, cfg OrderServiceConfig) *OrderService {
	t.Helper()
	if cfg.EventQueueSize == 0 {
		cfg.EventQueueSize = 100
	}
	svc := NewOrderService(e.db, e.cache, cfg, e.tel, e.metrics)

	drained := make(chan struct{})
	go func() {
		for range svc.GetEventQueue() {
		}
		close(drained)
	}()
	t.Cleanup(func() {
		svc.Close()
		<-drained
	})
	return svc
}

func (e *env) cartService() *CartService {
	return NewCartService(e.db, e.metrics, e.tel.Logger)
}

func (e *env) menuItem(t *testing.T, title, price string) domain.MenuItem {
	t.Helper()
	item, err := e.db.CreateMenuItem(context.Background(), domain.MenuItem{
		Title: title,
		Price: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return item
}

func (e *env) addToCart(t *testing.T, p domain.Principal, item domain.MenuItem, qty int) {
	t.Helper()
	_, err := e.cartService().AddLine(context.Background(), p, item.ID, qty)
	require.NoError(t, err)
}
