package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway talks to Stripe Checkout. A gateway built without a secret key
// stays usable but answers every checkout request with ErrNotConfigured, and
// one without a webhook secret rejects every event the same way.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return NewStripeGatewayWithBackends(secretKey, webhookSecret, nil)
}

// NewStripeGatewayWithBackends lets callers point the client at a different
// API host (tests, stripe-mock).
func NewStripeGatewayWithBackends(secretKey, webhookSecret string, backends *stripe.Backends) *StripeGateway {
	g := &StripeGateway{webhookSecret: webhookSecret}
	if secretKey != "" {
		g.api = client.New(secretKey, backends)
	} else {
		log.Warn().Msg("payment: STRIPE_SECRET_KEY is empty, checkout is disabled")
	}
	return g
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if g.api == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	for _, item := range req.LineItems {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.Description != "" {
			productData.Description = stripe.String(item.Description)
		}

		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(item.Currency),
				ProductData: productData,
				UnitAmount:  stripe.Int64(item.UnitAmountCents),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classifyStripeError(ctx, err)
	}

	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) ParseEvent(payload []byte, signatureHeader string) (*Event, error) {
	if g.webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrSignatureInvalid)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) {
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if !strings.HasPrefix(out.Type, "checkout.session.") {
		return out, nil
	}

	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data object", ErrMalformedEvent, ev.ID)
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: decode checkout session: %v", ErrMalformedEvent, err)
	}
	out.SessionID = cs.ID
	out.PaymentStatus = string(cs.PaymentStatus)
	out.Metadata = cs.Metadata

	return out, nil
}

func classifyStripeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}

	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode >= http.StatusInternalServerError ||
			se.HTTPStatusCode == http.StatusUnauthorized ||
			se.HTTPStatusCode == http.StatusTooManyRequests ||
			se.Type == stripe.ErrorTypeAPI {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return fmt.Errorf("stripe rejected checkout request: %w", err)
	}

	// Transport level failure, Stripe was never reached.
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
