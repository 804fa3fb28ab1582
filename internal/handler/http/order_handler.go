package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/prompt-shirt/internal/order"
)

// maxWebhookBodyBytes caps webhook payloads; Stripe events are far smaller.
const maxWebhookBodyBytes = 1 << 16

type CustomerInfoRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
}

type CreateOrderRequest struct {
	Prompt       string               `json:"prompt" validate:"required"`
	CustomerInfo *CustomerInfoRequest `json:"customerInfo" validate:"required"`
	ShirtColor   string               `json:"shirtColor"`
	ShirtSize    string               `json:"shirtSize"`
}

type CreateOrderResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

type OrderResponse struct {
	SessionID   string     `json:"sessionId"`
	Status      string     `json:"status"`
	Prompt      string     `json:"prompt"`
	ShirtColor  string     `json:"shirtColor"`
	ShirtSize   string     `json:"shirtSize"`
	AmountCents int64      `json:"amountCents"`
	Currency    string     `json:"currency"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type OrderHandler struct {
	checkout order.CheckoutService
	webhooks order.WebhookProcessor
	orders   order.Service
	validate *validator.Validate
}

func NewOrderHandler(checkout order.CheckoutService, webhooks order.WebhookProcessor, orders order.Service) *OrderHandler {
	return &OrderHandler{
		checkout: checkout,
		webhooks: webhooks,
		orders:   orders,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/order", h.handleCreateOrder)
	router.Post("/webhooks/stripe", h.handleStripeWebhook)
	router.Get("/orders/{sessionId}", h.handleGetOrder)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateOrderRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode order request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	ci := requestPayload.CustomerInfo
	draft := order.OrderDraft{
		Prompt:     requestPayload.Prompt,
		ShirtColor: order.ShirtColor(requestPayload.ShirtColor),
		ShirtSize:  order.ShirtSize(requestPayload.ShirtSize),
		Customer: order.CustomerInfo{
			Email:     ci.Email,
			FirstName: ci.FirstName,
			LastName:  ci.LastName,
			Address:   ci.Address,
			City:      ci.City,
			State:     ci.State,
			ZipCode:   ci.ZipCode,
			Country:   ci.Country,
		},
	}

	result, err := h.checkout.CreateSession(r.Context(), draft)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, order.ErrContentRejected):
			clientMessage = order.ErrContentRejected.Error()
		case errors.Is(err, order.ErrValidation):
			clientMessage = err.Error()
		case errors.Is(err, order.ErrGatewayUnavailable):
			clientMessage = "Payment gateway unavailable"
		default:
			clientMessage = "Failed to create checkout session"
		}

		if statusCode >= http.StatusInternalServerError {
			log.Error().Err(err).Msg("Failed to create checkout session via service")
		}
		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, CreateOrderResponse{
		SessionID: result.SessionID,
		URL:       result.RedirectURL,
	})
}

// handleStripeWebhook passes the body through byte for byte; the signature
// covers the raw payload.
func (h *OrderHandler) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read webhook body")
		respondWithError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	ack, err := h.webhooks.HandleEvent(r.Context(), body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, order.ErrSignatureInvalid):
			clientMessage = "Invalid signature"
		case errors.Is(err, order.ErrMalformedPayload):
			clientMessage = "Invalid webhook payload"
		case errors.Is(err, order.ErrGatewayUnavailable):
			clientMessage = "Webhook secret not configured"
		default:
			clientMessage = "Webhook handler failed"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	log.Debug().
		Str("event_id", ack.EventID).
		Str("event_type", ack.EventType).
		Str("session_id", ack.SessionID).
		Str("outcome", string(ack.Outcome)).
		Msg("Webhook event acknowledged")

	respondWithJSON(w, http.StatusOK, WebhookResponse{Received: true})
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	found, err := h.orders.GetOrder(r.Context(), sessionID)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			clientMessage = "Order not found"
		case errors.Is(err, order.ErrValidation):
			clientMessage = "Invalid session id"
		default:
			log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to get order via service")
			clientMessage = "Failed to get order"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, OrderResponse{
		SessionID:   found.SessionID,
		Status:      found.Status.String(),
		Prompt:      found.Prompt,
		ShirtColor:  string(found.ShirtColor),
		ShirtSize:   string(found.ShirtSize),
		AmountCents: found.AmountCents,
		Currency:    found.Currency,
		CreatedAt:   found.CreatedAt,
		CompletedAt: found.CompletedAt,
	})
}
