package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func TestFakeGateway_SessionLifecycle(t *testing.T) {
	g := NewFakeGateway("http://shop.test")
	ctx := context.Background()

	cs, err := g.CreateSession(ctx, "order-1", []LineItem{{Name: "Mug", UnitCents: 1200, Quantity: 1}})
	require.NoError(t, err)
	assert.Contains(t, cs.RedirectURL, cs.ID)

	s, err := g.GetSession(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, "order-1", s.OrderID)
	assert.NotEqual(t, StatusPaid, s.Status)

	require.NoError(t, g.Complete(cs.ID, "buyer@example.com"))

	s, err = g.GetSession(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, s.Status)
	assert.Equal(t, "buyer@example.com", s.PayerEmail)
}

func TestFakeGateway_UnknownSession(t *testing.T) {
	g := NewFakeGateway("http://shop.test")

	_, err := g.GetSession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, g.Complete("cs_missing", ""), ErrSessionNotFound)
}

func TestFakeGateway_CancelledContext(t *testing.T) {
	g := NewFakeGateway("http://shop.test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.CreateSession(ctx, "order-1", []LineItem{{Name: "Mug", UnitCents: 1, Quantity: 1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToSession(t *testing.T) {
	s := toSession(&stripe.CheckoutSession{
		ID:              "cs_test_1",
		PaymentStatus:   stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:        map[string]string{MetadataOrderID: "order-9"},
		Created:         1700000000,
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{Email: "payer@example.com"},
	})

	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, StatusPaid, s.Status)
	assert.Equal(t, "order-9", s.OrderID)
	assert.Equal(t, "payer@example.com", s.PayerEmail)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), s.CreatedAt)

	bare := toSession(&stripe.CheckoutSession{ID: "cs_test_2"})
	assert.Empty(t, bare.PayerEmail)
	assert.Empty(t, bare.OrderID)
}
