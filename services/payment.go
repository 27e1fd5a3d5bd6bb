package services

import (
	"context"
	"errors"
	"time"

	"storefront/audit"
	"storefront/events"
	"storefront/gateway"
	"storefront/logger"
	"storefront/metrics"
	"storefront/models"
)

const (
	SourceGateway = "gateway"
	SourceRaw     = "raw"
)

// PaymentConfirmation is either a GatewaySession, verified against the
// gateway, or a RawPayment trusted as submitted.
type PaymentConfirmation interface {
	source() string
}

type GatewaySession struct {
	SessionID string
}

// RawPayment covers payment methods without a server-verifiable session.
// Its fields are taken at face value.
type RawPayment struct {
	ID         string
	Status     string
	UpdateTime string
	PayerEmail string
}

func (GatewaySession) source() string { return SourceGateway }

func (RawPayment) source() string { return SourceRaw }

// ConfirmPayment applies payment to an order at most once. Repeated calls
// for a paid order return it unchanged without a store write.
func (s *OrderService) ConfirmPayment(ctx context.Context, id Identity, orderID string, req PaymentConfirmation) (order *models.Order, err error) {
	if req == nil {
		return nil, validationError(CodeInvalidPaymentPayload, "payment confirmation is required")
	}

	src := req.source()
	sessionID := ""
	outcome := audit.OutcomeRejected
	defer func() {
		s.recordConfirmation(ctx, orderID, src, sessionID, outcome, err)
	}()

	current, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(id, current); err != nil {
		return nil, err
	}

	var result models.PaymentResult
	switch r := req.(type) {
	case GatewaySession:
		sessionID = r.SessionID
		result, err = s.verifySession(ctx, current, r)
		if err != nil {
			return nil, err
		}
	case RawPayment:
		if r.ID == "" || r.Status == "" {
			return nil, validationError(CodeInvalidPaymentPayload, "payment id and status are required")
		}
		result = models.PaymentResult{
			ID:           r.ID,
			Status:       r.Status,
			UpdateTime:   r.UpdateTime,
			EmailAddress: r.PayerEmail,
		}
	}

	if current.IsPaid {
		outcome = audit.OutcomeAlreadyApplied
		s.logger.InfoContext(ctx, "payment already applied", "order_id", orderID, "source", src)
		return current, nil
	}

	res, err := s.orders.MarkPaid(ctx, current.ID, s.now().UTC(), result)
	if err != nil {
		return nil, internalError("mark paid", err)
	}

	switch res.Outcome {
	case models.OutcomeApplied:
		outcome = audit.OutcomeApplied
		s.logger.InfoContext(ctx, "payment applied", "order_id", orderID, "source", src, "payment_id", result.ID)
		s.invalidateSales(ctx)
		s.publish(ctx, events.TypeOrderPaid, res.Order, src)
		return res.Order, nil
	case models.OutcomeAlreadyApplied:
		// Lost a race with a concurrent confirmation.
		outcome = audit.OutcomeAlreadyApplied
		s.logger.InfoContext(ctx, "payment already applied", "order_id", orderID, "source", src)
		return res.Order, nil
	default:
		return nil, ErrOrderNotFound
	}
}

func (s *OrderService) verifySession(ctx context.Context, order *models.Order, req GatewaySession) (models.PaymentResult, error) {
	if req.SessionID == "" {
		return models.PaymentResult{}, validationError(CodeInvalidPaymentPayload, "session id is required")
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	start := time.Now()
	session, err := s.gateway.GetSession(gctx, req.SessionID)
	metrics.ObserveGateway("get_session", start, err)
	if errors.Is(err, gateway.ErrSessionNotFound) {
		return models.PaymentResult{}, ErrInvalidSession
	}
	if err != nil {
		s.logger.WarnContext(ctx, "gateway get session failed", "order_id", order.ID.Hex(), "session_id", req.SessionID, "error", err)
		return models.PaymentResult{}, gatewayUnavailable(err)
	}

	if session.OrderID != order.ID.Hex() {
		s.logger.WarnContext(ctx, "session bound to another order",
			"order_id", order.ID.Hex(),
			"session_id", session.ID,
			"session_order_id", session.OrderID,
		)
		return models.PaymentResult{}, ErrSessionOrderMismatch
	}
	if session.Status != gateway.StatusPaid {
		return models.PaymentResult{}, ErrPaymentNotCompleted
	}

	return models.PaymentResult{
		ID:           session.ID,
		Status:       session.Status,
		UpdateTime:   session.CreatedAt.UTC().Format(time.RFC3339),
		EmailAddress: session.PayerEmail,
	}, nil
}

func (s *OrderService) recordConfirmation(ctx context.Context, orderID, src, sessionID, outcome string, err error) {
	metrics.PaymentConfirmationsTotal.WithLabelValues(src, outcome).Inc()

	if s.audit == nil {
		return
	}

	var code string
	var svcErr *Error
	if errors.As(err, &svcErr) {
		code = svcErr.Code
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	entry := &audit.Entry{
		OrderID:    orderID,
		Source:     src,
		SessionID:  sessionID,
		Outcome:    outcome,
		Code:       code,
		RequestID:  logger.RequestID(ctx),
		RecordedAt: s.now().UTC(),
	}
	if err := s.audit.Save(actx, entry); err != nil {
		s.logger.WarnContext(ctx, "failed to record payment audit", "order_id", orderID, "error", err)
	}
}
