package payment

import (
	"context"
	"errors"
)

var (
	ErrNotConfigured    = errors.New("payment gateway is not configured")
	ErrUnavailable      = errors.New("payment gateway unavailable")
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrMalformedEvent   = errors.New("webhook payload malformed")
)

// Event types the order pipeline reacts to.
const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventCheckoutExpired               = "checkout.session.expired"
)

// Checkout session payment states.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

type LineItem struct {
	Name            string
	Description     string
	Currency        string
	UnitAmountCents int64
	Quantity        int64
}

type CheckoutRequest struct {
	LineItems     []LineItem
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Event is a verified provider notification. SessionID and PaymentStatus are
// empty for events that do not carry a checkout session.
type Event struct {
	ID            string
	Type          string
	SessionID     string
	PaymentStatus string
	Metadata      map[string]string
}

// PaymentSettled reports whether the session's funds are secured. A completed
// session paid with a delayed method is still unpaid until an
// async_payment_succeeded event follows.
func (e *Event) PaymentSettled() bool {
	return e.PaymentStatus == PaymentStatusPaid || e.PaymentStatus == PaymentStatusNoPaymentRequired
}

// Gateway is the payment provider seen by the order pipeline.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// ParseEvent verifies signatureHeader against the exact bytes of payload and
	// only then decodes it.
	ParseEvent(payload []byte, signatureHeader string) (*Event, error)
}
