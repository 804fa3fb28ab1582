package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrEmptySessionID = errors.New("session id is required")

// Service exposes read access to stored orders.
type Service interface {
	GetOrder(ctx context.Context, sessionID string) (*Order, error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{
		store: store,
	}
}

func (s *service) GetOrder(ctx context.Context, sessionID string) (*Order, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrEmptySessionID)
	}

	order, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("service: order not found by session id")
			return nil, ErrOrderNotFound
		}

		log.Error().Err(err).Str("session_id", sessionID).Msg("service: failed to fetch order from store")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}

	return order, nil
}
