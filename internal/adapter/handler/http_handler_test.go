package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/little-lemon/internal/adapter/storage"
	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/core/service"
	"github.com/rl1809/little-lemon/internal/telemetry"
)

type fixture struct {
	srv    http.Handler
	db     *storage.MemoryAdapter
	users  map[string]domain.User
	tokens map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := storage.NewMemoryAdapter()
	cache := storage.NewMemoryCache()
	tel := telemetry.Nop()
	metrics := telemetry.MustNewMetrics(tel.Meter)

	groups := service.NewGroupService(db, tel.Logger)
	require.NoError(t, groups.Bootstrap(ctx))

	orders := service.NewOrderService(db, cache, service.OrderServiceConfig{EventQueueSize: 100}, tel, metrics)
	drained := make(chan struct{})
	go func() {
		for range orders.GetEventQueue() {
		}
		close(drained)
	}()
	t.Cleanup(func() {
		orders.Close()
		<-drained
	})

	h := NewHTTPHandler(Services{
		Auth:   service.NewAuthService(db, db),
		Menu:   service.NewMenuService(db),
		Cart:   service.NewCartService(db, metrics, tel.Logger),
		Orders: orders,
		Groups: groups,
	}, db, tel.Logger)

	f := &fixture{
		srv:    h.Routes(),
		db:     db,
		users:  make(map[string]domain.User),
		tokens: make(map[string]string),
	}

	members := map[string]string{
		"manager":  domain.GroupManager,
		"crew":     domain.GroupDeliveryCrew,
		"customer": "",
		"other":    "",
	}
	for name, group := range members {
		u := db.CreateUser(name, name+"@littlelemon.test")
		if group != "" {
			require.NoError(t, db.AddGroupMember(ctx, group, u.ID))
		}
		token, err := db.IssueToken(ctx, u.ID)
		require.NoError(t, err)
		f.users[name] = u
		f.tokens[name] = token
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path, user string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Token "+f.tokens[user])
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) menuItem(t *testing.T, title, price string) domain.MenuItem {
	t.Helper()
	item, err := f.db.CreateMenuItem(context.Background(), domain.MenuItem{
		Title: title,
		Price: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) placeOrder(t *testing.T, user string, item domain.MenuItem, qty int) orderResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/cart/menu-items", user, map[string]any{"menuitem": item.ID, "quantity": qty})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/orders", user, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[orderResponse](t, rec)
}

func TestMenuItems_AnonymousAccess(t *testing.T) {
	f := newFixture(t)
	f.menuItem(t, "Greek Salad", "12.50")

	rec := f.do(t, http.MethodGet, "/api/menu-items", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]menuItemResponse](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "12.50", items[0].Price)

	rec = f.do(t, http.MethodPost, "/api/menu-items", "", map[string]any{"title": "Soup", "price": "4.00"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token", rec.Header().Get("WWW-Authenticate"))
}

func TestMenuItems_TrailingSlash(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/menu-items/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/menu-items", nil)
	req.Header.Set("Authorization", "Token not-a-real-token")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/menu-items", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMenuItems_ManagerWrites(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/menu-items", "manager", map[string]any{"title": " Bruschetta ", "price": "7.5", "inventory": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[menuItemResponse](t, rec)
	assert.Equal(t, "Bruschetta", created.Title)
	assert.Equal(t, "7.50", created.Price)

	path := fmt.Sprintf("/api/menu-items/%d", created.ID)

	rec = f.do(t, http.MethodPatch, path, "manager", map[string]any{"price": 8})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "8.00", decode[menuItemResponse](t, rec).Price)

	rec = f.do(t, http.MethodPut, path, "manager", map[string]any{"title": "Lemon Dessert"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/menu-items", "manager", map[string]any{"title": "Soup", "price": "1.234"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/menu-items", "customer", map[string]any{"title": "Soup", "price": "4.00"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPatch, path, "crew", "not json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, path, "manager", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMenuItems_SearchAndOrdering(t *testing.T) {
	f := newFixture(t)
	f.menuItem(t, "Lemon Cake", "6.00")
	f.menuItem(t, "Pasta", "11.00")
	f.menuItem(t, "Lemonade", "3.00")

	rec := f.do(t, http.MethodGet, "/api/menu-items?search=lemon&ordering=price", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]menuItemResponse](t, rec)
	require.Len(t, items, 2)
	assert.Equal(t, "Lemonade", items[0].Title)
	assert.Equal(t, "Lemon Cake", items[1].Title)

	rec = f.do(t, http.MethodGet, "/api/menu-items?ordering=-price&perpage=1&page=1", "", nil)
	items = decode[[]menuItemResponse](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "Pasta", items[0].Title)

	rec = f.do(t, http.MethodGet, "/api/menu-items?page=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestList_PageBeyondRange(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, "customer", f.menuItem(t, "Lemon Cake", "6.00"), 1)

	for _, query := range []string{"page=9223372036854775807", "page=184467440737095517&perpage=100"} {
		rec := f.do(t, http.MethodGet, "/api/menu-items?"+query, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, query)
		assert.Empty(t, decode[[]menuItemResponse](t, rec), query)

		rec = f.do(t, http.MethodGet, "/api/orders?"+query, "manager", nil)
		require.Equal(t, http.StatusOK, rec.Code, query)
		assert.Empty(t, decode[[]orderResponse](t, rec), query)
	}
}

func TestCartToOrder(t *testing.T) {
	f := newFixture(t)
	item := f.menuItem(t, "Greek Salad", "5.00")

	rec := f.do(t, http.MethodPost, "/api/cart/menu-items", "customer", map[string]any{"menuitem": item.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	line := decode[cartLineResponse](t, rec)
	assert.Equal(t, "5.00", line.UnitPrice)
	assert.Equal(t, "10.00", line.Price)
	assert.Equal(t, f.users["customer"].ID, line.User)

	rec = f.do(t, http.MethodPost, "/api/orders", "customer", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[orderResponse](t, rec)
	assert.Equal(t, "10.00", order.Total)
	assert.Equal(t, 0, order.Status)
	assert.Nil(t, order.DeliveryCrew)
	require.Len(t, order.OrderItems, 1)
	assert.Equal(t, "10.00", order.OrderItems[0].Price)
	assert.Equal(t, order.ID, order.OrderItems[0].Order)

	rec = f.do(t, http.MethodGet, "/api/cart/menu-items", "customer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]cartLineResponse](t, rec))

	rec = f.do(t, http.MethodPost, "/api/orders", "customer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCart_Validation(t *testing.T) {
	f := newFixture(t)
	item := f.menuItem(t, "Greek Salad", "5.00")

	rec := f.do(t, http.MethodPost, "/api/cart/menu-items", "customer", map[string]any{"menuitem": item.ID, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cart/menu-items", "customer", map[string]any{"menuitem": item.ID, "quantity": domain.MaxQuantity + 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cart/menu-items", "customer", map[string]any{"menuitem": 9999, "quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cart/menu-items", "manager", map[string]any{"menuitem": item.ID, "quantity": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cart/menu-items", "", map[string]any{"menuitem": item.ID, "quantity": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCart_Clear(t *testing.T) {
	f := newFixture(t)
	item := f.menuItem(t, "Greek Salad", "5.00")

	for _, path := range []string{"/api/cart/menu-items", "/api/cart/menu-items/delete/"} {
		rec := f.do(t, http.MethodPost, "/api/cart/menu-items", "customer", map[string]any{"menuitem": item.ID, "quantity": 1})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.do(t, http.MethodDelete, path, "customer", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code, path)

		rec = f.do(t, http.MethodGet, "/api/cart/menu-items", "customer", nil)
		assert.Empty(t, decode[[]cartLineResponse](t, rec), path)
	}
}

func TestOrders_IdempotencyKey(t *testing.T) {
	f := newFixture(t)
	item := f.menuItem(t, "Greek Salad", "5.00")

	rec := f.do(t, http.MethodPost, "/api/cart/menu-items", "customer", map[string]any{"menuitem": item.ID, "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders", "customer", nil, idempotencyHeader, "abc")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders", "customer", nil, idempotencyHeader, "abc")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOrders_CrewInvalidStatus(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "customer", f.menuItem(t, "Pasta", "11.00"), 1)
	path := fmt.Sprintf("/api/orders/%d", order.ID)

	rec := f.do(t, http.MethodPatch, path, "crew", `{"status": 2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, path, "crew", `{"status": 1, "delivery_crew": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, path, "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[orderResponse](t, rec)
	assert.Equal(t, 0, got.Status)
	assert.Nil(t, got.DeliveryCrew)
}

func TestOrders_CustomerCannotModify(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "customer", f.menuItem(t, "Pasta", "11.00"), 1)
	path := fmt.Sprintf("/api/orders/%d", order.ID)

	rec := f.do(t, http.MethodPatch, path, "customer", `{"status": 1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, path, "customer", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, path, "customer", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, path, "other", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrders_AssignAndDeliver(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "customer", f.menuItem(t, "Pasta", "11.00"), 2)
	path := fmt.Sprintf("/api/orders/%d", order.ID)
	crewID := f.users["crew"].ID

	rec := f.do(t, http.MethodGet, "/api/orders", "crew", nil)
	assert.Empty(t, decode[[]orderResponse](t, rec))

	rec = f.do(t, http.MethodPatch, path, "manager", map[string]any{"delivery_crew": crewID, "total": "0.01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[orderResponse](t, rec)
	require.NotNil(t, got.DeliveryCrew)
	assert.Equal(t, crewID, *got.DeliveryCrew)
	assert.Equal(t, "22.00", got.Total)

	rec = f.do(t, http.MethodGet, "/api/orders", "crew", nil)
	assert.Len(t, decode[[]orderResponse](t, rec), 1)

	rec = f.do(t, http.MethodPatch, path, "crew", map[string]any{"status": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[orderResponse](t, rec).Status)

	rec = f.do(t, http.MethodPatch, path, "manager", map[string]any{"status": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, path, "manager", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, path, "manager", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroups(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/groups/manager/users", "manager", map[string]string{"username": "other"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "other", decode[userResponse](t, rec).Username)

	rec = f.do(t, http.MethodGet, "/api/groups/manager/users", "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	for _, u := range decode[[]userResponse](t, rec) {
		names = append(names, u.Username)
	}
	assert.ElementsMatch(t, []string{"manager", "other"}, names)

	rec = f.do(t, http.MethodGet, "/api/groups/manager/users", "customer", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/groups/delivery-crew/users", "customer", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/groups/delivery-crew/users", "crew", map[string]string{"username": "customer"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/groups/delivery-crew/users", "manager", map[string]string{"username": "nobody"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	customerID := f.users["customer"].ID
	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/groups/delivery-crew/users/%d", customerID), "manager", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	otherID := f.users["other"].ID
	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/groups/manager/users/%d", otherID), "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["message"], "removed")

	rec = f.do(t, http.MethodGet, "/api/groups/manager/users", "other", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrValidation, http.StatusBadRequest},
		{fmt.Errorf("%w: detail", domain.ErrEmptyCart), http.StatusBadRequest},
		{domain.ErrInvalidStatus, http.StatusBadRequest},
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrPermissionDenied, http.StatusForbidden},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrDuplicateRequest, http.StatusConflict},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
