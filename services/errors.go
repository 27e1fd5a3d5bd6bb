package services

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindForbidden     Kind = "forbidden"
	KindConflict      Kind = "conflict"
	KindUpstream      Kind = "upstream"
	KindInternal      Kind = "internal"
)

const (
	CodeEmptyCart             = "EmptyCart"
	CodeInvalidOrderItem      = "InvalidOrderItem"
	CodeInvalidCartItems      = "InvalidCartItems"
	CodeInvalidPaymentPayload = "InvalidPaymentPayload"
	CodeProductNotFound       = "ProductNotFound"
	CodeOrderNotFound         = "OrderNotFound"
	CodeUnauthenticated       = "Unauthenticated"
	CodeForbidden             = "Forbidden"
	CodeSessionOrderMismatch  = "SessionOrderMismatch"
	CodePaymentNotCompleted   = "PaymentNotCompleted"
	CodeInvalidPaymentSession = "InvalidPaymentSession"
	CodeOrderAlreadyPaid      = "OrderAlreadyPaid"
	CodeOrderNotPaid          = "OrderNotPaid"
	CodeGatewayUnavailable    = "GatewayUnavailable"
	CodeInternal              = "Internal"
)

// Error is the only error type OrderService returns to its callers. Message
// is safe to show to clients; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrEmptyCart            = &Error{Kind: KindValidation, Code: CodeEmptyCart, Message: "no order items"}
	ErrOrderNotFound        = &Error{Kind: KindNotFound, Code: CodeOrderNotFound, Message: "order not found"}
	ErrUnauthenticated      = &Error{Kind: KindAuthorization, Code: CodeUnauthenticated, Message: "authentication required"}
	ErrForbidden            = &Error{Kind: KindForbidden, Code: CodeForbidden, Message: "access denied"}
	ErrSessionOrderMismatch = &Error{Kind: KindConflict, Code: CodeSessionOrderMismatch, Message: "invalid payment session for this order"}
	ErrPaymentNotCompleted  = &Error{Kind: KindConflict, Code: CodePaymentNotCompleted, Message: "payment not completed"}
	ErrInvalidSession       = &Error{Kind: KindConflict, Code: CodeInvalidPaymentSession, Message: "payment session not found"}
	ErrOrderAlreadyPaid     = &Error{Kind: KindConflict, Code: CodeOrderAlreadyPaid, Message: "order is already paid"}
	ErrOrderNotPaid         = &Error{Kind: KindConflict, Code: CodeOrderNotPaid, Message: "order is not paid"}
)

func validationError(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func productNotFound(ref string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeProductNotFound,
		Message: fmt.Sprintf("product not found: %s", ref),
	}
}

func gatewayUnavailable(err error) *Error {
	return &Error{
		Kind:    KindUpstream,
		Code:    CodeGatewayUnavailable,
		Message: "payment gateway unavailable, please retry",
		Err:     err,
	}
}

func internalError(op string, err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Message: "internal server error",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}

// KindOf reports the taxonomy kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
