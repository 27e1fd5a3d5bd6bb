package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/models"
)

// MemoryOrderStore mirrors OrderStore semantics, including the conditional
// paid/delivered updates, behind a single mutex.
type MemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[primitive.ObjectID]*models.Order
	users  map[primitive.ObjectID]models.UserSummary
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders: make(map[primitive.ObjectID]*models.Order),
		users:  make(map[primitive.ObjectID]models.UserSummary),
	}
}

// AddUser registers the projection returned by the *WithUser queries.
func (s *MemoryOrderStore) AddUser(u models.UserSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *MemoryOrderStore) Create(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, exists := s.orders[order.ID]; exists {
		return ErrDuplicate
	}

	s.orders[order.ID] = copyOrder(order)
	return nil
}

func (s *MemoryOrderStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyOrder(order), nil
}

func (s *MemoryOrderStore) FindByIDWithUser(ctx context.Context, id primitive.ObjectID) (*models.OrderWithUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, ErrNotFound
	}
	view := s.withUser(order)
	return &view, nil
}

func (s *MemoryOrderStore) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := []models.Order{}
	for _, o := range s.sorted() {
		if o.UserID == userID {
			orders = append(orders, *copyOrder(o))
		}
	}
	return orders, nil
}

func (s *MemoryOrderStore) ListAll(ctx context.Context) ([]models.OrderWithUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := []models.OrderWithUser{}
	for _, o := range s.sorted() {
		orders = append(orders, s.withUser(o))
	}
	return orders, nil
}

func (s *MemoryOrderStore) MarkPaid(ctx context.Context, id primitive.ObjectID, paidAt time.Time, result models.PaymentResult) (models.ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return models.ConfirmResult{Outcome: models.OutcomeNotFound}, nil
	}
	if order.IsPaid {
		return models.ConfirmResult{Outcome: models.OutcomeAlreadyApplied, Order: copyOrder(order)}, nil
	}

	at := paidAt
	order.IsPaid = true
	order.PaidAt = &at
	order.PaymentResult = &result
	return models.ConfirmResult{Outcome: models.OutcomeApplied, Order: copyOrder(order)}, nil
}

func (s *MemoryOrderStore) MarkDelivered(ctx context.Context, id primitive.ObjectID, deliveredAt time.Time) (models.ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return models.ConfirmResult{Outcome: models.OutcomeNotFound}, nil
	}
	if !order.IsPaid {
		return models.ConfirmResult{Outcome: models.OutcomePreconditionFailed, Order: copyOrder(order)}, nil
	}
	if order.IsDelivered {
		return models.ConfirmResult{Outcome: models.OutcomeAlreadyApplied, Order: copyOrder(order)}, nil
	}

	at := deliveredAt
	order.IsDelivered = true
	order.DeliveredAt = &at
	return models.ConfirmResult{Outcome: models.OutcomeApplied, Order: copyOrder(order)}, nil
}

func (s *MemoryOrderStore) CountOrders(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.orders)), nil
}

func (s *MemoryOrderStore) SumPaidSales(ctx context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, o := range s.orders {
		if o.IsPaid {
			total += o.TotalPrice
		}
	}
	return total, nil
}

func (s *MemoryOrderStore) SumPaidSalesByDate(ctx context.Context) ([]models.DailySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDate := make(map[string]float64)
	for _, o := range s.orders {
		if !o.IsPaid || o.PaidAt == nil {
			continue
		}
		byDate[o.PaidAt.UTC().Format("2006-01-02")] += o.TotalPrice
	}

	sales := make([]models.DailySales, 0, len(byDate))
	for date, total := range byDate {
		sales = append(sales, models.DailySales{Date: date, TotalSales: total})
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].Date < sales[j].Date })
	return sales, nil
}

// sorted returns orders newest first; callers hold the lock.
func (s *MemoryOrderStore) sorted() []*models.Order {
	orders := make([]*models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders
}

func (s *MemoryOrderStore) withUser(o *models.Order) models.OrderWithUser {
	view := models.OrderWithUser{Order: *copyOrder(o)}
	if u, ok := s.users[o.UserID]; ok {
		view.User = &u
	}
	return view
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	c.OrderItems = append([]models.OrderItem(nil), o.OrderItems...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	if o.PaymentResult != nil {
		r := *o.PaymentResult
		c.PaymentResult = &r
	}
	return &c
}

type MemoryProductLedger struct {
	mu       sync.RWMutex
	products map[string]models.Product
}

func NewMemoryProductLedger(products ...models.Product) *MemoryProductLedger {
	l := &MemoryProductLedger{products: make(map[string]models.Product)}
	for _, p := range products {
		l.Put(p)
	}
	return l
}

func (l *MemoryProductLedger) Put(p models.Product) models.Product {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	l.products[p.ID.Hex()] = p
	return p
}

func (l *MemoryProductLedger) FindByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	found := make(map[string]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := l.products[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

func (l *MemoryProductLedger) List(ctx context.Context) ([]models.Product, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	products := make([]models.Product, 0, len(l.products))
	for _, p := range l.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]models.User)}
}

func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryUserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Email]; exists {
		return ErrDuplicate
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	s.users[user.Email] = *user
	return nil
}

type MemoryTokenBlacklist struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

func NewMemoryTokenBlacklist() *MemoryTokenBlacklist {
	return &MemoryTokenBlacklist{tokens: make(map[string]time.Time), now: time.Now}
}

func (b *MemoryTokenBlacklist) Add(ctx context.Context, token string, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[token] = expiresAt
	return nil
}

func (b *MemoryTokenBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	exp, ok := b.tokens[token]
	if !ok {
		return false, nil
	}
	if b.now().After(exp) {
		delete(b.tokens, token)
		return false, nil
	}
	return true, nil
}
