package order

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/prompt-shirt/internal/metrics"
	"github.com/vasiliy-maslov/prompt-shirt/internal/moderation"
	"github.com/vasiliy-maslov/prompt-shirt/internal/payment"
)

// Metadata keys attached to every checkout session.
const (
	MetadataPrompt        = "prompt"
	MetadataShirtColor    = "shirtColor"
	MetadataShirtSize     = "shirtSize"
	MetadataCustomerEmail = "customerEmail"
	MetadataCustomerName  = "customerName"
)

const DefaultGatewayTimeout = 10 * time.Second

type CheckoutConfig struct {
	BaseURL     string
	ProductName string
	Prices      PriceTable
	Timeout     time.Duration
}

type CheckoutResult struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"url"`
}

type CheckoutService interface {
	CreateSession(ctx context.Context, draft OrderDraft) (*CheckoutResult, error)
}

type checkoutService struct {
	gateway  payment.Gateway
	store    Store
	filter   *moderation.Filter
	metrics  *metrics.Registry
	validate *validator.Validate
	cfg      CheckoutConfig
	now      func() time.Time
}

func NewCheckoutService(gateway payment.Gateway, store Store, filter *moderation.Filter, reg *metrics.Registry, cfg CheckoutConfig) CheckoutService {
	if filter == nil {
		filter = moderation.Default()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	if cfg.ProductName == "" {
		cfg.ProductName = DefaultProductName
	}
	if cfg.Prices.BaseCents == 0 {
		cfg.Prices = DefaultPriceTable()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGatewayTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &checkoutService{
		gateway:  gateway,
		store:    store,
		filter:   filter,
		metrics:  reg,
		validate: validator.New(),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *checkoutService) CreateSession(ctx context.Context, draft OrderDraft) (*CheckoutResult, error) {
	if err := s.validateDraft(draft); err != nil {
		log.Warn().Err(err).Msg("service: rejected invalid order draft")
		return nil, err
	}

	verdict := s.filter.Classify(draft.Prompt)
	if !verdict.Allowed {
		s.metrics.OrdersRejected.Inc()
		log.Warn().Strs("matched_terms", verdict.MatchedTerms).Msg("service: prompt blocked by moderation")
		return nil, &ContentRejectedError{MatchedTerms: verdict.MatchedTerms}
	}

	amount := s.cfg.Prices.Amount(draft.ShirtColor, draft.ShirtSize)

	session, err := s.openSession(ctx, draft, amount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		SessionID:   session.ID,
		Prompt:      draft.Prompt,
		ShirtColor:  draft.ShirtColor,
		ShirtSize:   draft.ShirtSize,
		Customer:    draft.Customer,
		AmountCents: amount,
		Currency:    s.cfg.Prices.Currency,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(ctx, o); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("service: failed to store pending order")
		return nil, fmt.Errorf("%w: %w", ErrOrder, err)
	}

	s.metrics.OrdersCreated.Inc()
	log.Info().
		Str("session_id", o.SessionID).
		Stringer("status", o.Status).
		Int64("amount_cents", o.AmountCents).
		Msg("service: checkout session opened")

	return &CheckoutResult{SessionID: session.ID, RedirectURL: session.URL}, nil
}

func (s *checkoutService) openSession(ctx context.Context, draft OrderDraft, amount int64) (*payment.CheckoutSession, error) {
	req := payment.CheckoutRequest{
		LineItems: []payment.LineItem{{
			Name:            s.cfg.ProductName,
			Description:     productDescription(draft.Prompt),
			Currency:        s.cfg.Prices.Currency,
			UnitAmountCents: amount,
			Quantity:        1,
		}},
		SuccessURL:    s.cfg.BaseURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.cfg.BaseURL + "/result?prompt=" + encodeQueryComponent(draft.Prompt),
		CustomerEmail: draft.Customer.Email,
		Metadata: map[string]string{
			MetadataPrompt:        draft.Prompt,
			MetadataShirtColor:    string(draft.ShirtColor),
			MetadataShirtSize:     string(draft.ShirtSize),
			MetadataCustomerEmail: draft.Customer.Email,
			MetadataCustomerName:  draft.Customer.FullName(),
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	session, err := s.gateway.CreateCheckoutSession(callCtx, req)
	s.metrics.GatewayLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.GatewayErrors.Inc()
		if errors.Is(err, payment.ErrNotConfigured) || errors.Is(err, payment.ErrUnavailable) ||
			errors.Is(err, context.DeadlineExceeded) {
			log.Error().Err(err).Msg("service: payment gateway unavailable")
			return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		}
		log.Error().Err(err).Msg("service: payment gateway rejected checkout session")
		return nil, fmt.Errorf("%w: %w", ErrOrder, err)
	}
	if session == nil || session.ID == "" {
		s.metrics.GatewayErrors.Inc()
		log.Error().Msg("service: payment gateway returned a session without id")
		return nil, fmt.Errorf("%w: empty checkout session", ErrOrder)
	}

	return session, nil
}

func (s *checkoutService) validateDraft(draft OrderDraft) error {
	err := s.validate.Struct(draft)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	fields := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		ns := fe.StructNamespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		fields = append(fields, ns)
	}
	return &ValidationError{Fields: fields}
}

// encodeQueryComponent escapes s like a browser's encodeURIComponent: spaces
// become %20, not +.
func encodeQueryComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
