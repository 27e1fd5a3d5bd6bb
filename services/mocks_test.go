package services

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/audit"
	"storefront/events"
	"storefront/gateway"
	"storefront/models"
)

type MockOrderStore struct {
	mock.Mock
}

func (m *MockOrderStore) Create(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderStore) FindByIDWithUser(ctx context.Context, id primitive.ObjectID) (*models.OrderWithUser, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderWithUser), args.Error(1)
}

func (m *MockOrderStore) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrderStore) ListAll(ctx context.Context) ([]models.OrderWithUser, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.OrderWithUser), args.Error(1)
}

func (m *MockOrderStore) MarkPaid(ctx context.Context, id primitive.ObjectID, paidAt time.Time, result models.PaymentResult) (models.ConfirmResult, error) {
	args := m.Called(ctx, id, paidAt, result)
	return args.Get(0).(models.ConfirmResult), args.Error(1)
}

func (m *MockOrderStore) MarkDelivered(ctx context.Context, id primitive.ObjectID, deliveredAt time.Time) (models.ConfirmResult, error) {
	args := m.Called(ctx, id, deliveredAt)
	return args.Get(0).(models.ConfirmResult), args.Error(1)
}

func (m *MockOrderStore) CountOrders(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderStore) SumPaidSales(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockOrderStore) SumPaidSalesByDate(ctx context.Context) ([]models.DailySales, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.DailySales), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateSession(ctx context.Context, orderID string, items []gateway.LineItem) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, orderID, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CheckoutSession), args.Error(1)
}

func (m *MockGateway) GetSession(ctx context.Context, sessionID string) (*gateway.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Session), args.Error(1)
}

// blockingGateway never answers before the caller's deadline.
type blockingGateway struct{}

func (blockingGateway) CreateSession(ctx context.Context, orderID string, items []gateway.LineItem) (*gateway.CheckoutSession, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingGateway) GetSession(ctx context.Context, sessionID string) (*gateway.Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Save(ctx context.Context, e *audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *recordingAudit) outcomes() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range r.entries {
		counts[e.Outcome]++
	}
	return counts
}

type channelPublisher struct {
	ch chan events.OrderEvent
}

func newChannelPublisher() *channelPublisher {
	return &channelPublisher{ch: make(chan events.OrderEvent, 16)}
}

func (p *channelPublisher) Publish(ctx context.Context, event events.OrderEvent) error {
	p.ch <- event
	return nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]string)}
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value.(string)
	c.sets++
	return nil
}

func (c *mapCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *mapCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *mapCache) GenerateKey(operation, key string) string {
	return "test:" + operation + ":" + key
}
