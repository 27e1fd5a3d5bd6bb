package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/audit"
	"storefront/cache"
	"storefront/database"
	"storefront/events"
	"storefront/gateway"
	"storefront/metrics"
	"storefront/models"
	"storefront/pricing"
)

type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	FindByIDWithUser(ctx context.Context, id primitive.ObjectID) (*models.OrderWithUser, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.OrderWithUser, error)
	MarkPaid(ctx context.Context, id primitive.ObjectID, paidAt time.Time, result models.PaymentResult) (models.ConfirmResult, error)
	MarkDelivered(ctx context.Context, id primitive.ObjectID, deliveredAt time.Time) (models.ConfirmResult, error)
	CountOrders(ctx context.Context) (int64, error)
	SumPaidSales(ctx context.Context) (float64, error)
	SumPaidSalesByDate(ctx context.Context) ([]models.DailySales, error)
}

type ProductLedger interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Product, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.OrderEvent) error
}

type AuditLog interface {
	Save(ctx context.Context, e *audit.Entry) error
}

// Identity is the authenticated caller as established by the auth middleware.
type Identity struct {
	UserID  string
	IsAdmin bool
}

// CartLine is a client cart entry. Price is accepted for wire compatibility
// and never used.
type CartLine struct {
	ProductID string
	Quantity  int
	Price     float64
}

type CreateOrderInput struct {
	Items           []CartLine
	ShippingAddress models.ShippingAddress
	PaymentMethod   string
}

type CheckoutItem struct {
	Name     string
	Price    float64
	Quantity int
}

type Deps struct {
	Orders   OrderStore
	Products ProductLedger
	Gateway  gateway.Gateway

	// Optional; nil disables the concern.
	Events EventPublisher
	Audit  AuditLog
	Cache  cache.Cache

	GatewayTimeout time.Duration
	SalesCacheTTL  time.Duration
	Clock          func() time.Time
	Logger         *slog.Logger
}

type OrderService struct {
	orders         OrderStore
	products       ProductLedger
	gateway        gateway.Gateway
	events         EventPublisher
	audit          AuditLog
	cache          cache.Cache
	gatewayTimeout time.Duration
	salesCacheTTL  time.Duration
	now            func() time.Time
	logger         *slog.Logger

	// salesGen advances on every sales invalidation.
	salesGen atomic.Uint64
}

func NewOrderService(d Deps) *OrderService {
	s := &OrderService{
		orders:         d.Orders,
		products:       d.Products,
		gateway:        d.Gateway,
		events:         d.Events,
		audit:          d.Audit,
		cache:          d.Cache,
		gatewayTimeout: d.GatewayTimeout,
		salesCacheTTL:  d.SalesCacheTTL,
		now:            d.Clock,
		logger:         d.Logger,
	}
	if s.events == nil {
		s.events = events.NoopPublisher{}
	}
	if s.gatewayTimeout <= 0 {
		s.gatewayTimeout = 10 * time.Second
	}
	if s.salesCacheTTL <= 0 {
		s.salesCacheTTL = 30 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "order_service")
	return s
}

func (s *OrderService) CreateOrder(ctx context.Context, id Identity, in CreateOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyCart
	}

	userID, err := primitive.ObjectIDFromHex(id.UserID)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	refs := make([]string, 0, len(in.Items))
	seen := make(map[string]bool, len(in.Items))
	for i, line := range in.Items {
		if line.ProductID == "" {
			return nil, validationError(CodeInvalidOrderItem, "order item %d: missing product", i)
		}
		if line.Quantity <= 0 {
			return nil, validationError(CodeInvalidOrderItem, "order item %d: quantity must be positive", i)
		}
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			refs = append(refs, line.ProductID)
		}
	}

	found, err := s.products.FindByIDs(ctx, refs)
	if err != nil {
		return nil, internalError("resolve products", err)
	}

	items := make([]models.OrderItem, 0, len(in.Items))
	lines := make([]pricing.Line, 0, len(in.Items))
	for _, line := range in.Items {
		product, ok := found[line.ProductID]
		if !ok {
			return nil, productNotFound(line.ProductID)
		}

		unit := decimal.NewFromFloat(product.Price)
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.Image,
			Quantity:  line.Quantity,
			Price:     pricing.Float(unit),
		})
		lines = append(lines, pricing.Line{UnitPrice: unit, Quantity: line.Quantity})
	}

	prices := pricing.Calculate(lines)

	order := &models.Order{
		UserID:          userID,
		OrderItems:      items,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		ItemsPrice:      pricing.Float(prices.ItemsPrice),
		ShippingPrice:   pricing.Float(prices.ShippingPrice),
		TaxPrice:        pricing.Float(prices.TaxPrice),
		TotalPrice:      pricing.Float(prices.TotalPrice),
		CreatedAt:       s.now().UTC(),
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, internalError("create order", err)
	}

	metrics.OrdersCreatedTotal.Inc()
	s.logger.InfoContext(ctx, "order created",
		"order_id", order.ID.Hex(),
		"user_id", id.UserID,
		"items", len(items),
		"total_price", order.TotalPrice,
	)
	s.publish(ctx, events.TypeOrderCreated, order, "")

	return order, nil
}

// CreateCheckoutSession charges the stored order's items plus shipping and
// tax. The client cart is only checked for shape.
func (s *OrderService) CreateCheckoutSession(ctx context.Context, id Identity, orderID string, cart []CheckoutItem) (*gateway.CheckoutSession, error) {
	if len(cart) == 0 {
		return nil, validationError(CodeInvalidCartItems, "cart items are required")
	}
	for i, item := range cart {
		if item.Quantity <= 0 || item.Price < 0 {
			return nil, validationError(CodeInvalidCartItems, "cart item %d is malformed", i)
		}
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(id, order); err != nil {
		return nil, err
	}
	if order.IsPaid {
		return nil, ErrOrderAlreadyPaid
	}

	lineItems := checkoutLineItems(order.OrderItems)
	if order.ShippingPrice > 0 {
		lineItems = append(lineItems, gateway.LineItem{
			Name:      "Shipping",
			UnitCents: pricing.ToCents(decimal.NewFromFloat(order.ShippingPrice)),
			Quantity:  1,
		})
	}
	if order.TaxPrice > 0 {
		lineItems = append(lineItems, gateway.LineItem{
			Name:      "Tax",
			UnitCents: pricing.ToCents(decimal.NewFromFloat(order.TaxPrice)),
			Quantity:  1,
		})
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	start := time.Now()
	session, err := s.gateway.CreateSession(gctx, order.ID.Hex(), lineItems)
	metrics.ObserveGateway("create_session", start, err)
	if err != nil {
		s.logger.WarnContext(ctx, "gateway create session failed", "order_id", orderID, "error", err)
		return nil, gatewayUnavailable(err)
	}

	s.logger.InfoContext(ctx, "checkout session created", "order_id", orderID, "session_id", session.ID)
	return session, nil
}

// MarkDelivered requires an admin caller and a paid order. Re-delivery
// returns the order unchanged.
func (s *OrderService) MarkDelivered(ctx context.Context, id Identity, orderID string) (*models.Order, error) {
	if !id.IsAdmin {
		return nil, ErrForbidden
	}

	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, ErrOrderNotFound
	}

	res, err := s.orders.MarkDelivered(ctx, oid, s.now().UTC())
	if err != nil {
		return nil, internalError("mark delivered", err)
	}

	switch res.Outcome {
	case models.OutcomeApplied:
		s.logger.InfoContext(ctx, "order delivered", "order_id", orderID)
		s.publish(ctx, events.TypeOrderDelivered, res.Order, "")
		return res.Order, nil
	case models.OutcomeAlreadyApplied:
		s.logger.InfoContext(ctx, "order already delivered", "order_id", orderID)
		return res.Order, nil
	case models.OutcomePreconditionFailed:
		return nil, ErrOrderNotPaid
	default:
		return nil, ErrOrderNotFound
	}
}

func (s *OrderService) FindOrderByID(ctx context.Context, id Identity, orderID string) (*models.OrderWithUser, error) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, ErrOrderNotFound
	}

	order, err := s.orders.FindByIDWithUser(ctx, oid)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, internalError("find order", err)
	}
	if err := authorizeOwner(id, &order.Order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListOrdersForUser(ctx context.Context, id Identity) ([]models.Order, error) {
	userID, err := primitive.ObjectIDFromHex(id.UserID)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, internalError("list user orders", err)
	}
	return orders, nil
}

func (s *OrderService) ListAllOrders(ctx context.Context, id Identity) ([]models.OrderWithUser, error) {
	if !id.IsAdmin {
		return nil, ErrForbidden
	}

	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, internalError("list orders", err)
	}
	return orders, nil
}

func (s *OrderService) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, ErrOrderNotFound
	}

	order, err := s.orders.FindByID(ctx, oid)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, internalError("find order", err)
	}
	return order, nil
}

// publish runs detached from the request so a slow broker never delays or
// fails the response.
func (s *OrderService) publish(ctx context.Context, eventType string, order *models.Order, source string) {
	event := events.OrderEvent{
		Type:       eventType,
		OrderID:    order.ID.Hex(),
		UserID:     order.UserID.Hex(),
		TotalPrice: order.TotalPrice,
		Source:     source,
		OccurredAt: s.now().UTC(),
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish order event", "type", eventType, "order_id", event.OrderID, "error", err)
		}
	}()
}

// checkoutLineItems converts stored items to gateway lines whose cents add up
// to the order's items price. A line priced below cent precision is charged
// as one amount for its whole quantity.
func checkoutLineItems(items []models.OrderItem) []gateway.LineItem {
	lines := make([]pricing.Line, len(items))
	for i, item := range items {
		lines[i] = pricing.Line{UnitPrice: decimal.NewFromFloat(item.Price), Quantity: item.Quantity}
	}
	cents := pricing.LineCents(lines)

	out := make([]gateway.LineItem, 0, len(items)+2)
	for i, item := range items {
		qty := int64(item.Quantity)
		if qty > 0 && cents[i]%qty == 0 && cents[i]/qty == pricing.ToCents(lines[i].UnitPrice) {
			out = append(out, gateway.LineItem{Name: item.Name, UnitCents: cents[i] / qty, Quantity: qty})
			continue
		}
		out = append(out, gateway.LineItem{
			Name:      fmt.Sprintf("%s x %d", item.Name, item.Quantity),
			UnitCents: cents[i],
			Quantity:  1,
		})
	}
	return out
}

func authorizeOwner(id Identity, order *models.Order) error {
	if id.IsAdmin || order.UserID.Hex() == id.UserID {
		return nil
	}
	return ErrForbidden
}
