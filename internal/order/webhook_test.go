package order_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/prompt-shirt/internal/metrics"
	"github.com/vasiliy-maslov/prompt-shirt/internal/order"
	"github.com/vasiliy-maslov/prompt-shirt/internal/payment"
)

const testWebhookSecret = "whsec_test_secret"

func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts.Unix())))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func checkoutEvent(eventID, eventType, sessionID string) []byte {
	return checkoutEventWithPayment(eventID, eventType, sessionID, payment.PaymentStatusPaid)
}

func checkoutEventWithPayment(eventID, eventType, sessionID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "type": %q,
  "data": {
    "object": {
      "id": %q,
      "object": "checkout.session",
      "payment_status": %q,
      "metadata": {"prompt": "A dog walking on the moon", "shirtColor": "black", "customerEmail": "jane@example.com"}
    }
  }
}`, eventID, eventType, sessionID, paymentStatus))
}

// countingFulfiller records every order it is asked to fulfil.
type countingFulfiller struct {
	calls atomic.Int32
	err   error

	mu     sync.Mutex
	orders []order.Order
}

func (f *countingFulfiller) Fulfill(_ context.Context, o order.Order) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.orders = append(f.orders, o)
	f.mu.Unlock()
	return f.err
}

type webhookFixture struct {
	store     *order.MemoryStore
	fulfiller *countingFulfiller
	metrics   *metrics.Registry
	processor order.WebhookProcessor
}

func newWebhookFixture(t *testing.T, sessionIDs ...string) *webhookFixture {
	t.Helper()

	store := order.NewMemoryStore()
	for _, id := range sessionIDs {
		require.NoError(t, store.Create(context.Background(), newTestOrder(id)))
	}

	f := &webhookFixture{
		store:     store,
		fulfiller: &countingFulfiller{},
		metrics:   metrics.NewRegistry(),
	}
	gw := payment.NewStripeGateway("", testWebhookSecret)
	f.processor = order.NewWebhookProcessor(gw, store, f.fulfiller, f.metrics)
	return f
}

func (f *webhookFixture) deliver(t *testing.T, payload []byte) (*order.Ack, error) {
	t.Helper()
	return f.processor.HandleEvent(context.Background(), payload, signPayload(payload, testWebhookSecret, time.Now()))
}

func (f *webhookFixture) status(t *testing.T, sessionID string) order.OrderStatus {
	t.Helper()
	o, err := f.store.Get(context.Background(), sessionID)
	require.NoError(t, err)
	return o.Status
}

func TestWebhookProcessor_CompletedEvent(t *testing.T) {
	f := newWebhookFixture(t, "cs_test_1")

	ack, err := f.deliver(t, checkoutEvent("evt_1", payment.EventCheckoutCompleted, "cs_test_1"))
	require.NoError(t, err)
	assert.Equal(t, order.AckTransitioned, ack.Outcome)
	assert.Equal(t, "cs_test_1", ack.SessionID)
	assert.Equal(t, order.StatusCompleted, ack.Status)

	assert.Equal(t, order.StatusCompleted, f.status(t, "cs_test_1"))
	require.EqualValues(t, 1, f.fulfiller.calls.Load())
	assert.Equal(t, "cs_test_1", f.fulfiller.orders[0].SessionID)
	assert.Equal(t, order.StatusCompleted, f.fulfiller.orders[0].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues(payment.EventCheckoutCompleted, metrics.OutcomeTransitioned)))
}

func TestWebhookProcessor_CompletionLogCarriesSessionMetadata(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	f := newWebhookFixture(t, "cs_test_log")
	_, err := f.deliver(t, checkoutEvent("evt_log", payment.EventCheckoutCompleted, "cs_test_log"))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"customer_email":"jane@example.com"`)
	assert.Contains(t, buf.String(), `"prompt":"A dog walking on the moon"`)
}

func TestWebhookProcessor_DuplicateDeliveryFulfilsOnce(t *testing.T) {
	f := newWebhookFixture(t, "cs_test_dup")
	payload := checkoutEvent("evt_dup", payment.EventCheckoutCompleted, "cs_test_dup")

	first, err := f.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, order.AckTransitioned, first.Outcome)

	second, err := f.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, order.AckDuplicate, second.Outcome)
	assert.Equal(t, order.StatusCompleted, second.Status)

	assert.Equal(t, order.StatusCompleted, f.status(t, "cs_test_dup"))
	assert.EqualValues(t, 1, f.fulfiller.calls.Load())
}

func TestWebhookProcessor_ConcurrentDuplicatesFulfilOnce(t *testing.T) {
	f := newWebhookFixture(t, "cs_test_race")
	payload := checkoutEvent("evt_race", payment.EventCheckoutCompleted, "cs_test_race")
	sig := signPayload(payload, testWebhookSecret, time.Now())

	const deliveries = 20
	var wg sync.WaitGroup
	var transitioned atomic.Int32
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ack, err := f.processor.HandleEvent(context.Background(), payload, sig)
			if assert.NoError(t, err) && ack.Outcome == order.AckTransitioned {
				transitioned.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, transitioned.Load())
	assert.EqualValues(t, 1, f.fulfiller.calls.Load())
	assert.Equal(t, order.StatusCompleted, f.status(t, "cs_test_race"))
}

func TestWebhookProcessor_FailureEvents(t *testing.T) {
	for _, eventType := range []string{payment.EventCheckoutExpired, payment.EventCheckoutAsyncPaymentFailed} {
		t.Run(eventType, func(t *testing.T) {
			f := newWebhookFixture(t, "cs_test_fail")

			ack, err := f.deliver(t, checkoutEvent("evt_fail", eventType, "cs_test_fail"))
			require.NoError(t, err)
			assert.Equal(t, order.AckTransitioned, ack.Outcome)
			assert.Equal(t, order.StatusFailed, f.status(t, "cs_test_fail"))
			assert.Zero(t, f.fulfiller.calls.Load())
		})
	}
}

func TestWebhookProcessor_AsyncPaymentSucceeded(t *testing.T) {
	f := newWebhookFixture(t, "cs_test_async")

	_, err := f.deliver(t, checkoutEvent("evt_async", payment.EventCheckoutAsyncPaymentSucceeded, "cs_test_async"))
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, f.status(t, "cs_test_async"))
	assert.EqualValues(t, 1, f.fulfiller.calls.Load())
}

func TestWebhookProcessor_DelayedPaymentSettledByAsyncEvent(t *testing.T) {
	tests := []struct {
		name          string
		asyncType     string
		wantStatus    order.OrderStatus
		wantFulfilled int32
	}{
		{name: "payment fails", asyncType: payment.EventCheckoutAsyncPaymentFailed, wantStatus: order.StatusFailed, wantFulfilled: 0},
		{name: "payment succeeds", asyncType: payment.EventCheckoutAsyncPaymentSucceeded, wantStatus: order.StatusCompleted, wantFulfilled: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t, "cs_test_delayed")

			ack, err := f.deliver(t, checkoutEventWithPayment("evt_completed", payment.EventCheckoutCompleted, "cs_test_delayed", payment.PaymentStatusUnpaid))
			require.NoError(t, err)
			assert.Equal(t, order.AckAwaitingPayment, ack.Outcome)
			assert.Equal(t, order.StatusPending, ack.Status)
			assert.Equal(t, order.StatusPending, f.status(t, "cs_test_delayed"))
			assert.Zero(t, f.fulfiller.calls.Load())

			ack, err = f.deliver(t, checkoutEventWithPayment("evt_async", tt.asyncType, "cs_test_delayed", payment.PaymentStatusUnpaid))
			require.NoError(t, err)
			assert.Equal(t, order.AckTransitioned, ack.Outcome)
			assert.Equal(t, tt.wantStatus, f.status(t, "cs_test_delayed"))
			assert.Equal(t, tt.wantFulfilled, f.fulfiller.calls.Load())
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues(payment.EventCheckoutCompleted, metrics.OutcomeAwaitingPayment)))
		})
	}
}

func TestWebhookProcessor_CompletedWithoutPaymentRequired(t *testing.T) {
	f := newWebhookFixture(t, "cs_test_free")

	ack, err := f.deliver(t, checkoutEventWithPayment("evt_free", payment.EventCheckoutCompleted, "cs_test_free", payment.PaymentStatusNoPaymentRequired))
	require.NoError(t, err)
	assert.Equal(t, order.AckTransitioned, ack.Outcome)
	assert.Equal(t, order.StatusCompleted, f.status(t, "cs_test_free"))
	assert.EqualValues(t, 1, f.fulfiller.calls.Load())
}

func TestWebhookProcessor_UnpaidCompletionAfterSettlement(t *testing.T) {
	f := newWebhookFixture(t, "cs_test_settled")

	_, err := f.deliver(t, checkoutEvent("evt_paid", payment.EventCheckoutCompleted, "cs_test_settled"))
	require.NoError(t, err)

	ack, err := f.deliver(t, checkoutEventWithPayment("evt_late", payment.EventCheckoutCompleted, "cs_test_settled", payment.PaymentStatusUnpaid))
	require.NoError(t, err)
	assert.Equal(t, order.AckDuplicate, ack.Outcome)
	assert.Equal(t, order.StatusCompleted, ack.Status)
	assert.EqualValues(t, 1, f.fulfiller.calls.Load())
}

func TestWebhookProcessor_UnpaidCompletionForUnknownSession(t *testing.T) {
	f := newWebhookFixture(t)

	ack, err := f.deliver(t, checkoutEventWithPayment("evt_u", payment.EventCheckoutCompleted, "cs_not_ours", payment.PaymentStatusUnpaid))
	require.NoError(t, err)
	assert.Equal(t, order.AckUnknownSession, ack.Outcome)
}

func TestWebhookProcessor_UnpaidCompletionStoreFailure(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ParseEvent", mock.Anything, mock.Anything).
		Return(&payment.Event{ID: "evt_db2", Type: payment.EventCheckoutCompleted, SessionID: "cs_test_db2", PaymentStatus: payment.PaymentStatusUnpaid}, nil).
		Once()

	p := order.NewWebhookProcessor(gw, failingStore{err: errors.New("connection reset")}, nil, nil)
	ack, err := p.HandleEvent(context.Background(), []byte("{}"), "sig")
	require.Error(t, err)
	assert.Nil(t, ack)
}

func TestWebhookProcessor_TerminalStatesAreMonotonic(t *testing.T) {
	f := newWebhookFixture(t, "cs_test_mono")

	_, err := f.deliver(t, checkoutEvent("evt_done", payment.EventCheckoutCompleted, "cs_test_mono"))
	require.NoError(t, err)

	later := []string{
		payment.EventCheckoutExpired,
		payment.EventCheckoutAsyncPaymentFailed,
		payment.EventCheckoutAsyncPaymentSucceeded,
		payment.EventCheckoutCompleted,
		"checkout.session.some_future_type",
	}
	for i, eventType := range later {
		ack, err := f.deliver(t, checkoutEvent(fmt.Sprintf("evt_later_%d", i), eventType, "cs_test_mono"))
		require.NoError(t, err, eventType)
		assert.NotEqual(t, order.AckTransitioned, ack.Outcome, eventType)
		assert.Equal(t, order.StatusCompleted, f.status(t, "cs_test_mono"), eventType)
	}
	assert.EqualValues(t, 1, f.fulfiller.calls.Load())
}

func TestWebhookProcessor_IgnoresIrrelevantEvents(t *testing.T) {
	f := newWebhookFixture(t, "cs_test_ignore")
	payload := []byte(`{"id":"evt_pi","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)

	ack, err := f.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, order.AckIgnored, ack.Outcome)
	assert.Equal(t, order.StatusPending, f.status(t, "cs_test_ignore"))
	assert.Zero(t, f.fulfiller.calls.Load())
}

func TestWebhookProcessor_UnknownSessionIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	ack, err := f.deliver(t, checkoutEvent("evt_unknown", payment.EventCheckoutCompleted, "cs_never_created"))
	require.NoError(t, err)
	assert.Equal(t, order.AckUnknownSession, ack.Outcome)
	assert.Zero(t, f.fulfiller.calls.Load())
}

func TestWebhookProcessor_SignatureMismatchLeavesOrderPending(t *testing.T) {
	f := newWebhookFixture(t, "cs_test_d")
	payload := checkoutEvent("evt_d", payment.EventCheckoutCompleted, "cs_test_d")

	tests := []struct {
		name string
		body []byte
		sig  string
	}{
		{name: "wrong secret", body: payload, sig: signPayload(payload, "whsec_other", time.Now())},
		{name: "body altered after signing", body: append([]byte(" "), payload...), sig: signPayload(payload, testWebhookSecret, time.Now())},
		{name: "missing header", body: payload, sig: ""},
		{name: "stale timestamp", body: payload, sig: signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack, err := f.processor.HandleEvent(context.Background(), tt.body, tt.sig)
			require.ErrorIs(t, err, order.ErrSignatureInvalid)
			assert.Nil(t, ack)
			assert.Equal(t, order.StatusPending, f.status(t, "cs_test_d"))
		})
	}
	assert.Zero(t, f.fulfiller.calls.Load())
}

func TestWebhookProcessor_MalformedPayload(t *testing.T) {
	f := newWebhookFixture(t)

	_, err := f.deliver(t, []byte(`not json at all`))
	require.ErrorIs(t, err, order.ErrMalformedPayload)
}

func TestWebhookProcessor_FulfilmentFailureStillAcks(t *testing.T) {
	f := newWebhookFixture(t, "cs_test_ff")
	f.fulfiller.err = errors.New("printer offline")

	ack, err := f.deliver(t, checkoutEvent("evt_ff", payment.EventCheckoutCompleted, "cs_test_ff"))
	require.NoError(t, err)
	assert.Equal(t, order.AckTransitioned, ack.Outcome)
	assert.Equal(t, order.StatusCompleted, f.status(t, "cs_test_ff"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FulfillmentErrors))
}

func TestWebhookProcessor_GatewayErrors(t *testing.T) {
	tests := []struct {
		name     string
		parseErr error
		wantErr  error
	}{
		{name: "secret not configured", parseErr: payment.ErrNotConfigured, wantErr: order.ErrGatewayUnavailable},
		{name: "bad signature", parseErr: fmt.Errorf("%w: no match", payment.ErrSignatureInvalid), wantErr: order.ErrSignatureInvalid},
		{name: "bad payload", parseErr: fmt.Errorf("%w: eof", payment.ErrMalformedEvent), wantErr: order.ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := new(MockGateway)
			gw.On("ParseEvent", []byte("{}"), "t=1,v1=ab").Return(nil, tt.parseErr).Once()

			p := order.NewWebhookProcessor(gw, order.NewMemoryStore(), nil, metrics.NewRegistry())
			ack, err := p.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=ab")
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, ack)
			gw.AssertExpectations(t)
		})
	}
}

func TestWebhookProcessor_CheckoutEventWithoutSession(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ParseEvent", mock.Anything, mock.Anything).
		Return(&payment.Event{ID: "evt_nosession", Type: payment.EventCheckoutCompleted}, nil).
		Once()

	p := order.NewWebhookProcessor(gw, order.NewMemoryStore(), nil, nil)
	_, err := p.HandleEvent(context.Background(), []byte("{}"), "sig")
	require.ErrorIs(t, err, order.ErrMalformedPayload)
}

func TestWebhookProcessor_StoreFailureIsNotAcked(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ParseEvent", mock.Anything, mock.Anything).
		Return(&payment.Event{ID: "evt_db", Type: payment.EventCheckoutCompleted, SessionID: "cs_test_db", PaymentStatus: payment.PaymentStatusPaid}, nil).
		Once()

	p := order.NewWebhookProcessor(gw, failingStore{err: errors.New("connection reset")}, nil, nil)
	ack, err := p.HandleEvent(context.Background(), []byte("{}"), "sig")
	require.Error(t, err)
	assert.Nil(t, ack)
	assert.NotErrorIs(t, err, order.ErrMalformedPayload)
	assert.NotErrorIs(t, err, order.ErrSignatureInvalid)
}
