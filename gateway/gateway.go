// Package gateway adapts the external checkout provider to the two calls the
// order service needs: create a checkout session and read it back.
package gateway

import (
	"context"
	"errors"
	"time"
)

const (
	// MetadataOrderID is the session metadata key that binds a session to an order.
	MetadataOrderID = "orderId"

	StatusPaid = "paid"
)

var ErrSessionNotFound = errors.New("gateway: session not found")

type LineItem struct {
	Name      string
	UnitCents int64
	Quantity  int64
}

type CheckoutSession struct {
	ID          string
	RedirectURL string
}

type Session struct {
	ID         string
	Status     string
	OrderID    string
	PayerEmail string
	CreatedAt  time.Time
}

type Gateway interface {
	CreateSession(ctx context.Context, orderID string, items []LineItem) (*CheckoutSession, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}
