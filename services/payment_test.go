package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/audit"
	"storefront/events"
	"storefront/gateway"
	"storefront/logger"
	"storefront/models"
)

func unpaidOrder(owner Identity) *models.Order {
	uid, _ := primitive.ObjectIDFromHex(owner.UserID)
	return &models.Order{
		ID:         primitive.NewObjectID(),
		UserID:     uid,
		OrderItems: []models.OrderItem{{Name: "mug", Quantity: 1, Price: 20}},
		ItemsPrice: 20, ShippingPrice: 10, TaxPrice: 3, TotalPrice: 33,
	}
}

func TestConfirmPayment_GatewaySessionIsIdempotent(t *testing.T) {
	store := new(MockOrderStore)
	gw := new(MockGateway)
	svc := NewOrderService(Deps{Orders: store, Gateway: gw, Clock: func() time.Time { return fixedNow }})

	user := customer()
	order := unpaidOrder(user)
	paid := *order
	paid.IsPaid = true
	paid.PaidAt = &fixedNow
	paid.PaymentResult = &models.PaymentResult{ID: "cs_1", Status: "paid", EmailAddress: "ann@example.com"}

	session := &gateway.Session{
		ID:         "cs_1",
		Status:     gateway.StatusPaid,
		OrderID:    order.ID.Hex(),
		PayerEmail: "ann@example.com",
		CreatedAt:  fixedNow.Add(-time.Minute),
	}

	store.On("FindByID", mock.Anything, order.ID).Return(order, nil).Once()
	store.On("FindByID", mock.Anything, order.ID).Return(&paid, nil).Once()
	gw.On("GetSession", mock.Anything, "cs_1").Return(session, nil).Twice()
	store.On("MarkPaid", mock.Anything, order.ID, fixedNow, mock.MatchedBy(func(r models.PaymentResult) bool {
		return r.ID == "cs_1" && r.Status == "paid" && r.EmailAddress == "ann@example.com" &&
			r.UpdateTime == fixedNow.Add(-time.Minute).Format(time.RFC3339)
	})).Return(models.ConfirmResult{Outcome: models.OutcomeApplied, Order: &paid}, nil).Once()

	first, err := svc.ConfirmPayment(context.Background(), user, order.ID.Hex(), GatewaySession{SessionID: "cs_1"})
	require.NoError(t, err)
	assert.True(t, first.IsPaid)

	second, err := svc.ConfirmPayment(context.Background(), user, order.ID.Hex(), GatewaySession{SessionID: "cs_1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	store.AssertNumberOfCalls(t, "MarkPaid", 1)
	store.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestConfirmPayment_SessionForAnotherOrder(t *testing.T) {
	f := newFixture(t)
	user := customer()
	p := f.product("mug", 20)
	orderA := f.createOrder(t, user, CartLine{ProductID: p.ID.Hex(), Quantity: 1})
	orderB := f.createOrder(t, user, CartLine{ProductID: p.ID.Hex(), Quantity: 2})
	ctx := context.Background()

	session, err := f.gateway.CreateSession(ctx, orderA.ID.Hex(), []gateway.LineItem{{Name: "mug", UnitCents: 2000, Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, f.gateway.Complete(session.ID, "ann@example.com"))

	_, err = f.svc.ConfirmPayment(ctx, user, orderB.ID.Hex(), GatewaySession{SessionID: session.ID})

	assert.ErrorIs(t, err, ErrSessionOrderMismatch)
	assert.Equal(t, KindConflict, KindOf(err))

	stored, err := f.orders.FindByID(ctx, orderB.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPaid)
	assert.Nil(t, stored.PaymentResult)
}

func TestConfirmPayment_GatewayOutcomes(t *testing.T) {
	user := customer()

	tests := []struct {
		name     string
		session  *gateway.Session
		err      error
		wantCode string
	}{
		{
			name:     "payment not completed",
			session:  &gateway.Session{ID: "cs_1", Status: "unpaid"},
			wantCode: CodePaymentNotCompleted,
		},
		{
			name:     "unknown session",
			err:      gateway.ErrSessionNotFound,
			wantCode: CodeInvalidPaymentSession,
		},
		{
			name:     "transport failure",
			err:      errors.New("connection refused"),
			wantCode: CodeGatewayUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockOrderStore)
			gw := new(MockGateway)
			svc := NewOrderService(Deps{Orders: store, Gateway: gw})

			order := unpaidOrder(user)
			if tt.session != nil {
				tt.session.OrderID = order.ID.Hex()
			}
			store.On("FindByID", mock.Anything, order.ID).Return(order, nil)
			if tt.session != nil {
				gw.On("GetSession", mock.Anything, "cs_1").Return(tt.session, nil)
			} else {
				gw.On("GetSession", mock.Anything, "cs_1").Return(nil, tt.err)
			}

			_, err := svc.ConfirmPayment(context.Background(), user, order.ID.Hex(), GatewaySession{SessionID: "cs_1"})

			var svcErr *Error
			require.ErrorAs(t, err, &svcErr)
			assert.Equal(t, tt.wantCode, svcErr.Code)
			store.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestConfirmPayment_GatewayTimeoutLeavesOrderUnpaid(t *testing.T) {
	f := newFixture(t)
	f.svc.gateway = blockingGateway{}
	f.svc.gatewayTimeout = 20 * time.Millisecond
	user := customer()
	p := f.product("mug", 20)
	order := f.createOrder(t, user, CartLine{ProductID: p.ID.Hex(), Quantity: 1})

	_, err := f.svc.ConfirmPayment(context.Background(), user, order.ID.Hex(), GatewaySession{SessionID: "cs_slow"})

	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeGatewayUnavailable, svcErr.Code)

	stored, err := f.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPaid)
}

func TestConfirmPayment_RawPayload(t *testing.T) {
	f := newFixture(t)
	pub := newChannelPublisher()
	f.svc.events = pub
	user := customer()
	p := f.product("mug", 20)
	order := f.createOrder(t, user, CartLine{ProductID: p.ID.Hex(), Quantity: 1})
	<-pub.ch

	paid, err := f.svc.ConfirmPayment(context.Background(), user, order.ID.Hex(), RawPayment{
		ID:         "PAYID-1",
		Status:     "COMPLETED",
		UpdateTime: "2024-06-01T11:59:00Z",
		PayerEmail: "ann@example.com",
	})
	require.NoError(t, err)

	assert.True(t, paid.IsPaid)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, fixedNow, *paid.PaidAt)
	assert.Equal(t, models.PaymentResult{
		ID:           "PAYID-1",
		Status:       "COMPLETED",
		UpdateTime:   "2024-06-01T11:59:00Z",
		EmailAddress: "ann@example.com",
	}, *paid.PaymentResult)

	select {
	case ev := <-pub.ch:
		assert.Equal(t, events.TypeOrderPaid, ev.Type)
		assert.Equal(t, SourceRaw, ev.Source)
	case <-time.After(time.Second):
		t.Fatal("order.paid was not published")
	}
}

func TestConfirmPayment_RejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	user := customer()
	p := f.product("mug", 20)
	order := f.createOrder(t, user, CartLine{ProductID: p.ID.Hex(), Quantity: 1})
	ctx := context.Background()

	_, err := f.svc.ConfirmPayment(ctx, user, order.ID.Hex(), RawPayment{Status: "COMPLETED"})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeInvalidPaymentPayload, svcErr.Code)

	_, err = f.svc.ConfirmPayment(ctx, user, order.ID.Hex(), GatewaySession{})
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeInvalidPaymentPayload, svcErr.Code)

	_, err = f.svc.ConfirmPayment(ctx, user, order.ID.Hex(), nil)
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, CodeInvalidPaymentPayload, svcErr.Code)

	_, err = f.svc.ConfirmPayment(ctx, user, primitive.NewObjectID().Hex(), RawPayment{ID: "x", Status: "COMPLETED"})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.ConfirmPayment(ctx, customer(), order.ID.Hex(), RawPayment{ID: "x", Status: "COMPLETED"})
	assert.ErrorIs(t, err, ErrForbidden)

	stored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPaid)
}

func TestConfirmPayment_ConcurrentAppliesOnce(t *testing.T) {
	f := newFixture(t)
	user := customer()
	p := f.product("mug", 20)
	order := f.createOrder(t, user, CartLine{ProductID: p.ID.Hex(), Quantity: 1})
	ctx := context.Background()

	session, err := f.gateway.CreateSession(ctx, order.ID.Hex(), []gateway.LineItem{{Name: "mug", UnitCents: 2000, Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, f.gateway.Complete(session.ID, "ann@example.com"))

	const callers = 32
	var wg sync.WaitGroup
	results := make([]*models.Order, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ConfirmPayment(ctx, user, order.ID.Hex(), GatewaySession{SessionID: session.ID})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i].IsPaid)
		assert.Equal(t, session.ID, results[i].PaymentResult.ID)
	}

	outcomes := f.audit.outcomes()
	assert.Equal(t, 1, outcomes[audit.OutcomeApplied])
	assert.Equal(t, callers-1, outcomes[audit.OutcomeAlreadyApplied])
}

func TestConfirmPayment_AuditsRejections(t *testing.T) {
	f := newFixture(t)
	user := customer()
	p := f.product("mug", 20)
	order := f.createOrder(t, user, CartLine{ProductID: p.ID.Hex(), Quantity: 1})
	ctx := logger.WithRequestID(context.Background(), "req-42")

	session, err := f.gateway.CreateSession(ctx, order.ID.Hex(), []gateway.LineItem{{Name: "mug", UnitCents: 2000, Quantity: 1}})
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, user, order.ID.Hex(), GatewaySession{SessionID: session.ID})
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Equal(t, order.ID.Hex(), entry.OrderID)
	assert.Equal(t, SourceGateway, entry.Source)
	assert.Equal(t, session.ID, entry.SessionID)
	assert.Equal(t, audit.OutcomeRejected, entry.Outcome)
	assert.Equal(t, CodePaymentNotCompleted, entry.Code)
	assert.Equal(t, "req-42", entry.RequestID)
}

func TestSales_PaidOrdersOnlyAndCacheInvalidation(t *testing.T) {
	f := newFixture(t)
	c := newMapCache()
	f.svc.cache = c
	user := customer()
	ctx := context.Background()

	a := f.product("a", 80)
	b := f.product("b", 30)
	c3 := f.product("c", 60)

	o1 := f.createOrder(t, user, CartLine{ProductID: a.ID.Hex(), Quantity: 1})
	f.createOrder(t, user, CartLine{ProductID: b.ID.Hex(), Quantity: 1})
	o3 := f.createOrder(t, user, CartLine{ProductID: c3.ID.Hex(), Quantity: 1})

	for _, o := range []*models.Order{o1, o3} {
		_, err := f.svc.ConfirmPayment(ctx, user, o.ID.Hex(), RawPayment{ID: "p-" + o.ID.Hex(), Status: "COMPLETED"})
		require.NoError(t, err)
	}

	total, err := f.svc.SumTotalSales(ctx)
	require.NoError(t, err)
	assert.InDelta(t, o1.TotalPrice+o3.TotalPrice, total, 0.001)
	assert.Equal(t, 1, c.sets)

	count, err := f.svc.CountTotalOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Served from cache.
	again, err := f.svc.SumTotalSales(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, again)
	assert.Equal(t, 1, c.sets)

	byDate, err := f.svc.SumSalesByDate(ctx)
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, "2024-06-01", byDate[0].Date)
	assert.InDelta(t, total, byDate[0].TotalSales, 0.001)

	o2 := f.createOrder(t, user, CartLine{ProductID: b.ID.Hex(), Quantity: 1})
	_, err = f.svc.ConfirmPayment(ctx, user, o2.ID.Hex(), RawPayment{ID: "p2", Status: "COMPLETED"})
	require.NoError(t, err)

	after, err := f.svc.SumTotalSales(ctx)
	require.NoError(t, err)
	assert.InDelta(t, total+o2.TotalPrice, after, 0.001)
}

func TestSumTotalSales_RoundsToCents(t *testing.T) {
	store := new(MockOrderStore)
	svc := NewOrderService(Deps{Orders: store})

	store.On("SumPaidSales", mock.Anything).Return(175.0000001, nil)

	total, err := svc.SumTotalSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 175.0, total)
}

func TestSumTotalSales_DropsValueReadBeforePayment(t *testing.T) {
	store := new(MockOrderStore)
	c := newMapCache()
	svc := NewOrderService(Deps{Orders: store, Cache: c})
	ctx := context.Background()

	// A payment is applied while the first aggregate query is in flight.
	store.On("SumPaidSales", mock.Anything).
		Run(func(mock.Arguments) { svc.invalidateSales(ctx) }).
		Return(100.0, nil).Once()
	store.On("SumPaidSales", mock.Anything).Return(150.0, nil).Once()

	stale, err := svc.SumTotalSales(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stale)
	assert.Empty(t, c.data)

	fresh, err := svc.SumTotalSales(ctx)
	require.NoError(t, err)
	assert.Equal(t, 150.0, fresh)

	cached, err := svc.SumTotalSales(ctx)
	require.NoError(t, err)
	assert.Equal(t, 150.0, cached)
	store.AssertNumberOfCalls(t, "SumPaidSales", 2)
}
