package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	TypeOrderCreated   = "order.created"
	TypeOrderPaid      = "order.paid"
	TypeOrderDelivered = "order.delivered"
)

type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	TotalPrice float64   `json:"total_price"`
	Source     string    `json:"source,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close()
}

type NatsPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

func NewNatsPublisher(ctx context.Context, url string, logger *slog.Logger) (*NatsPublisher, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < 3; i++ {
		nc, err = nats.Connect(url,
			nats.Name("storefront"),
			nats.MaxReconnects(5),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				logger.Warn("NATS disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err == nil {
			logger.Info("connected to NATS", "url", url)
			return &NatsPublisher{nc: nc, logger: logger}, nil
		}

		logger.Warn("failed to connect to NATS", "attempt", i+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		case <-time.After(2 * time.Second):
		}
	}

	return nil, fmt.Errorf("failed to connect to NATS after retries: %w", err)
}

func (p *NatsPublisher) Publish(ctx context.Context, event OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	for i := 0; i < 3; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err = p.nc.Publish(event.Type, data); err != nil {
			p.logger.WarnContext(ctx, "failed to publish to NATS", "attempt", i+1, "error", err)
			time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
			continue
		}
		if err = p.nc.FlushWithContext(ctx); err != nil {
			p.logger.WarnContext(ctx, "failed to flush NATS connection", "error", err)
			continue
		}

		p.logger.DebugContext(ctx, "published order event", "type", event.Type, "order_id", event.OrderID)
		return nil
	}

	return fmt.Errorf("failed to publish %s after retries", event.Type)
}

func (p *NatsPublisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
		p.logger.Info("NATS connection closed")
	}
}

// NoopPublisher is used when NATS_URL is unset.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event OrderEvent) error { return nil }

func (NoopPublisher) Close() {}
