package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type StripeGateway struct {
	api         *client.API
	frontendURL string
	currency    string
}

func NewStripeGateway(secretKey, frontendURL string, timeout time.Duration) *StripeGateway {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: timeout},
	})

	return &StripeGateway{
		api:         client.New(secretKey, &stripe.Backends{API: backend}),
		frontendURL: frontendURL,
		currency:    string(stripe.CurrencyUSD),
	}
}

func (g *StripeGateway) CreateSession(ctx context.Context, orderID string, items []LineItem) (*CheckoutSession, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, len(items))
	for i, item := range items {
		lineItems[i] = &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(item.UnitCents),
			},
			Quantity: stripe.Int64(item.Quantity),
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		SuccessURL: stripe.String(fmt.Sprintf(
			"%s/order/%s?payment_success=true&session_id={CHECKOUT_SESSION_ID}", g.frontendURL, orderID)),
		CancelURL: stripe.String(fmt.Sprintf(
			"%s/order/%s?payment_canceled=true", g.frontendURL, orderID)),
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrderID, orderID)

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	return &CheckoutSession{ID: s.ID, RedirectURL: s.URL}, nil
}

func (g *StripeGateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("stripe: retrieve checkout session: %w", err)
	}

	return toSession(s), nil
}

func toSession(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:        s.ID,
		Status:    string(s.PaymentStatus),
		OrderID:   s.Metadata[MetadataOrderID],
		CreatedAt: time.Unix(s.Created, 0).UTC(),
	}
	if s.CustomerDetails != nil {
		out.PayerEmail = s.CustomerDetails.Email
	}
	return out
}
