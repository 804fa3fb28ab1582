package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/prompt-shirt/internal/metrics"
	"github.com/vasiliy-maslov/prompt-shirt/internal/payment"
)

// Fulfiller runs the side effects of a paid order (print job, confirmation
// mail). It is called at most once per session.
type Fulfiller interface {
	Fulfill(ctx context.Context, o Order) error
}

type AckOutcome string

const (
	AckTransitioned    AckOutcome = AckOutcome(metrics.OutcomeTransitioned)
	AckDuplicate       AckOutcome = AckOutcome(metrics.OutcomeDuplicate)
	AckIgnored         AckOutcome = AckOutcome(metrics.OutcomeIgnored)
	AckUnknownSession  AckOutcome = AckOutcome(metrics.OutcomeUnknownSession)
	AckAwaitingPayment AckOutcome = AckOutcome(metrics.OutcomeAwaitingPayment)
)

// Ack is returned for every verified event, whether or not it changed state.
type Ack struct {
	EventID   string
	EventType string
	SessionID string
	Outcome   AckOutcome
	Status    OrderStatus
}

type WebhookProcessor interface {
	HandleEvent(ctx context.Context, rawBody []byte, signatureHeader string) (*Ack, error)
}

// eventTargets maps provider event types to the status a pending order moves
// to. Types not listed are acknowledged without effect. A completed event whose
// payment is not settled yet leaves the order pending; the async_payment_*
// event that follows decides it.
var eventTargets = map[string]OrderStatus{
	payment.EventCheckoutCompleted:             StatusCompleted,
	payment.EventCheckoutAsyncPaymentSucceeded: StatusCompleted,
	payment.EventCheckoutAsyncPaymentFailed:    StatusFailed,
	payment.EventCheckoutExpired:               StatusFailed,
}

type webhookProcessor struct {
	gateway   payment.Gateway
	store     Store
	fulfiller Fulfiller
	metrics   *metrics.Registry
}

func NewWebhookProcessor(gateway payment.Gateway, store Store, fulfiller Fulfiller, reg *metrics.Registry) WebhookProcessor {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &webhookProcessor{
		gateway:   gateway,
		store:     store,
		fulfiller: fulfiller,
		metrics:   reg,
	}
}

func (p *webhookProcessor) HandleEvent(ctx context.Context, rawBody []byte, signatureHeader string) (*Ack, error) {
	ev, err := p.gateway.ParseEvent(rawBody, signatureHeader)
	if err != nil {
		p.metrics.ObserveWebhook("", metrics.OutcomeRejected)
		switch {
		case errors.Is(err, payment.ErrNotConfigured):
			log.Error().Err(err).Msg("service: webhook secret is not configured")
			return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		case errors.Is(err, payment.ErrSignatureInvalid):
			log.Warn().Err(err).Msg("service: webhook signature verification failed")
			return nil, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
		default:
			log.Warn().Err(err).Msg("service: webhook payload could not be parsed")
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
	}

	ack := &Ack{EventID: ev.ID, EventType: ev.Type, SessionID: ev.SessionID}

	target, relevant := eventTargets[ev.Type]
	if !relevant {
		ack.Outcome = AckIgnored
		p.metrics.ObserveWebhook(ev.Type, string(ack.Outcome))
		log.Debug().Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("service: ignoring webhook event")
		return ack, nil
	}

	if ev.SessionID == "" {
		p.metrics.ObserveWebhook(ev.Type, metrics.OutcomeRejected)
		log.Warn().Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("service: checkout event without session id")
		return nil, fmt.Errorf("%w: event %s has no session id", ErrMalformedPayload, ev.ID)
	}

	if ev.Type == payment.EventCheckoutCompleted && !ev.PaymentSettled() {
		return p.awaitPayment(ctx, ev, ack)
	}

	applied, current, err := p.store.Transition(ctx, ev.SessionID, StatusPending, target)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return p.ackUnknownSession(ev, ack), nil
		}
		log.Error().Err(err).Str("session_id", ev.SessionID).Stringer("new_status", target).Msg("service: failed to apply order transition")
		return nil, fmt.Errorf("service: failed to apply transition for session %s: %w", ev.SessionID, err)
	}

	ack.Status = current.Status
	if !applied {
		ack.Outcome = AckDuplicate
		p.metrics.ObserveWebhook(ev.Type, string(ack.Outcome))
		log.Info().
			Str("event_id", ev.ID).
			Str("event_type", ev.Type).
			Str("session_id", ev.SessionID).
			Stringer("status", current.Status).
			Msg("service: order already settled, event acknowledged without change")
		return ack, nil
	}

	ack.Outcome = AckTransitioned
	p.metrics.ObserveWebhook(ev.Type, string(ack.Outcome))
	log.Info().
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Str("session_id", ev.SessionID).
		Stringer("old_status", StatusPending).
		Stringer("new_status", current.Status).
		Str("customer_email", ev.Metadata[MetadataCustomerEmail]).
		Str("prompt", ev.Metadata[MetadataPrompt]).
		Msg("service: order status updated")

	if current.Status == StatusCompleted && p.fulfiller != nil {
		if err := p.fulfiller.Fulfill(ctx, *current); err != nil {
			// The transition is already committed; a retry would be acked as a
			// duplicate, so the failure is only reported here.
			p.metrics.FulfillmentErrors.Inc()
			log.Error().Err(err).Str("session_id", current.SessionID).Msg("service: fulfillment failed for completed order")
		}
	}

	return ack, nil
}

// awaitPayment acknowledges a completed session whose payment is still in
// flight without touching the order.
func (p *webhookProcessor) awaitPayment(ctx context.Context, ev *payment.Event, ack *Ack) (*Ack, error) {
	current, err := p.store.Get(ctx, ev.SessionID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return p.ackUnknownSession(ev, ack), nil
		}
		log.Error().Err(err).Str("session_id", ev.SessionID).Msg("service: failed to load order for unpaid session")
		return nil, fmt.Errorf("service: failed to load order for session %s: %w", ev.SessionID, err)
	}

	ack.Status = current.Status
	ack.Outcome = AckAwaitingPayment
	if IsTerminal(current.Status) {
		ack.Outcome = AckDuplicate
	}
	p.metrics.ObserveWebhook(ev.Type, string(ack.Outcome))
	log.Info().
		Str("event_id", ev.ID).
		Str("session_id", ev.SessionID).
		Str("payment_status", ev.PaymentStatus).
		Stringer("status", current.Status).
		Msg("service: checkout completed without settled payment, order left unchanged")

	return ack, nil
}

func (p *webhookProcessor) ackUnknownSession(ev *payment.Event, ack *Ack) *Ack {
	ack.Outcome = AckUnknownSession
	p.metrics.ObserveWebhook(ev.Type, string(ack.Outcome))
	log.Warn().
		Err(ErrUnknownSession).
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Str("session_id", ev.SessionID).
		Msg("service: webhook event for unknown session")
	return ack
}
