package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/port"
)

// MemoryAdapter keeps every table in process memory behind one mutex. It
// backs DB_DRIVER=memory and the service and handler tests.
type MemoryAdapter struct {
	mu sync.Mutex

	seq    int64
	users  map[int64]domain.User
	groups map[string]map[int64]struct{}
	menu   map[int64]domain.MenuItem
	cart   map[int64]domain.CartLine
	orders map[int64]domain.Order
	tokens map[string]int64
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		users:  make(map[int64]domain.User),
		groups: make(map[string]map[int64]struct{}),
		menu:   make(map[int64]domain.MenuItem),
		cart:   make(map[int64]domain.CartLine),
		orders: make(map[int64]domain.Order),
		tokens: make(map[string]int64),
	}
}

var _ port.DatabaseRepository = (*MemoryAdapter)(nil)

func (m *MemoryAdapter) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return ctx.Err()
}

// CreateUser registers a user. Users are otherwise provisioned outside this
// service; the memory store needs a way to seed them.
func (m *MemoryAdapter) CreateUser(username, email string) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := domain.User{ID: m.nextID(), Username: username, Email: email}
	m.users[u.ID] = u
	return u
}

// --- menu ---

func (m *MemoryAdapter) ListMenuItems(ctx context.Context, q domain.MenuQuery) ([]domain.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	search := strings.ToLower(q.Search)
	items := make([]domain.MenuItem, 0, len(m.menu))
	for _, it := range m.menu {
		if search != "" && !strings.Contains(strings.ToLower(it.Title), search) {
			continue
		}
		items = append(items, it)
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch q.Ordering {
		case domain.MenuOrderByTitle:
			if a.Title != b.Title {
				return a.Title < b.Title
			}
		case domain.MenuOrderByTitleDesc:
			if a.Title != b.Title {
				return a.Title > b.Title
			}
		case domain.MenuOrderByPrice:
			if !a.Price.Equal(b.Price) {
				return a.Price.LessThan(b.Price)
			}
		case domain.MenuOrderByPriceDesc:
			if !a.Price.Equal(b.Price) {
				return a.Price.GreaterThan(b.Price)
			}
		}
		return a.ID < b.ID
	})

	return paginate(items, q.Page), nil
}

func paginate[T any](items []T, page domain.Page) []T {
	off, limit := page.Offset(), page.Limit()
	if off >= len(items) {
		return []T{}
	}
	end := min(off+limit, len(items))
	return items[off:end]
}

func (m *MemoryAdapter) GetMenuItem(ctx context.Context, id int64) (domain.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.menu[id]
	if !ok {
		return domain.MenuItem{}, fmt.Errorf("%w: menu item %d", domain.ErrNotFound, id)
	}
	return it, nil
}

func (m *MemoryAdapter) CreateMenuItem(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item.ID = m.nextID()
	m.menu[item.ID] = item
	return item, nil
}

func (m *MemoryAdapter) UpdateMenuItem(ctx context.Context, item domain.MenuItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.menu[item.ID]; !ok {
		return fmt.Errorf("%w: menu item %d", domain.ErrNotFound, item.ID)
	}
	m.menu[item.ID] = item
	return nil
}

func (m *MemoryAdapter) DeleteMenuItem(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.menu[id]; !ok {
		return fmt.Errorf("%w: menu item %d", domain.ErrNotFound, id)
	}
	delete(m.menu, id)
	for lineID, l := range m.cart {
		if l.MenuItemID == id {
			delete(m.cart, lineID)
		}
	}
	return nil
}

// --- cart ---

func (m *MemoryAdapter) AddCartLine(ctx context.Context, line domain.CartLine) (domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	line.ID = m.nextID()
	m.cart[line.ID] = line
	return line, nil
}

func (m *MemoryAdapter) ListCartLines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cartOf(userID), nil
}

func (m *MemoryAdapter) cartOf(userID int64) []domain.CartLine {
	lines := []domain.CartLine{}
	for _, l := range m.cart {
		if l.UserID == userID {
			lines = append(lines, l)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines
}

func (m *MemoryAdapter) ClearCart(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, l := range m.cart {
		if l.UserID == userID {
			delete(m.cart, id)
		}
	}
	return nil
}

// --- orders ---

func (m *MemoryAdapter) PlaceOrder(ctx context.Context, userID int64, build port.BuildOrderFunc) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	lines := m.cartOf(userID)
	order, err := build(lines)
	if err != nil {
		return domain.Order{}, err
	}

	order.ID = m.nextID()
	order.Items = slices.Clone(order.Items)
	for i := range order.Items {
		order.Items[i].ID = m.nextID()
		order.Items[i].OrderID = order.ID
	}
	m.orders[order.ID] = order

	for _, l := range lines {
		delete(m.cart, l.ID)
	}
	return cloneOrder(order), nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	if o.DeliveryCrew != nil {
		crew := *o.DeliveryCrew
		o.DeliveryCrew = &crew
	}
	return o
}

func (m *MemoryAdapter) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders := []domain.Order{}
	for _, o := range m.orders {
		if filter.UserID != 0 && o.UserID != filter.UserID {
			continue
		}
		if filter.DeliveryCrewID != 0 && (o.DeliveryCrew == nil || *o.DeliveryCrew != filter.DeliveryCrewID) {
			continue
		}
		orders = append(orders, cloneOrder(o))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return paginate(orders, filter.Page), nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	return cloneOrder(o), nil
}

func (m *MemoryAdapter) UpdateOrder(ctx context.Context, id int64, mutate func(*domain.Order) error) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}

	updated := cloneOrder(o)
	if err := mutate(&updated); err != nil {
		return domain.Order{}, err
	}

	updated = cloneOrder(updated)
	o.Status = updated.Status
	o.DeliveryCrew = updated.DeliveryCrew
	m.orders[id] = o
	return cloneOrder(o), nil
}

func (m *MemoryAdapter) DeleteOrder(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[id]; !ok {
		return fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	delete(m.orders, id)
	return nil
}

// --- users & groups ---

func (m *MemoryAdapter) GetUser(ctx context.Context, id int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	return u, nil
}

func (m *MemoryAdapter) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("%w: user %q", domain.ErrNotFound, username)
}

func (m *MemoryAdapter) UserGroups(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for name, members := range m.groups {
		if _, ok := members[userID]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryAdapter) ListGroupMembers(ctx context.Context, group string) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := []domain.User{}
	for id := range m.groups[group] {
		users = append(users, m.users[id])
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemoryAdapter) AddGroupMember(ctx context.Context, group string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.groups[group]
	if !ok {
		return fmt.Errorf("%w: group %q", domain.ErrNotFound, group)
	}
	if _, ok := m.users[userID]; !ok {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
	}
	members[userID] = struct{}{}
	return nil
}

func (m *MemoryAdapter) RemoveGroupMember(ctx context.Context, group string, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.groups[group]
	if !ok {
		return false, nil
	}
	if _, ok := members[userID]; !ok {
		return false, nil
	}
	delete(members, userID)
	return true, nil
}

func (m *MemoryAdapter) EnsureGroups(ctx context.Context, groups []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range groups {
		if _, ok := m.groups[g]; !ok {
			m.groups[g] = make(map[int64]struct{})
		}
	}
	return nil
}

// --- tokens ---

func (m *MemoryAdapter) IssueToken(ctx context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return "", fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
	}
	token := newToken()
	m.tokens[token] = userID
	return token, nil
}

func (m *MemoryAdapter) ResolveToken(ctx context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.tokens[token]
	if !ok {
		return 0, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	return id, nil
}
