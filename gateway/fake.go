package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FakeGateway keeps checkout sessions in memory. It backs GATEWAY_DRIVER=fake
// for local runs and is used by handler tests.
type FakeGateway struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	redirectURL string
	now         func() time.Time
}

func NewFakeGateway(redirectURL string) *FakeGateway {
	return &FakeGateway{
		sessions:    make(map[string]*Session),
		redirectURL: redirectURL,
		now:         time.Now,
	}
}

func (g *FakeGateway) CreateSession(ctx context.Context, orderID string, items []LineItem) (*CheckoutSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("fake gateway: no line items")
	}

	id := "cs_fake_" + uuid.NewString()

	g.mu.Lock()
	g.sessions[id] = &Session{
		ID:        id,
		Status:    "unpaid",
		OrderID:   orderID,
		CreatedAt: g.now().UTC(),
	}
	g.mu.Unlock()

	return &CheckoutSession{
		ID:          id,
		RedirectURL: fmt.Sprintf("%s/checkout/%s", g.redirectURL, id),
	}, nil
}

func (g *FakeGateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sessionCopy := *s
	return &sessionCopy, nil
}

// Complete marks a session paid, standing in for the customer finishing checkout.
func (g *FakeGateway) Complete(sessionID, payerEmail string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Status = StatusPaid
	s.PayerEmail = payerEmail
	return nil
}
