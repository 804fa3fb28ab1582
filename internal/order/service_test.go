package order_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vasiliy-maslov/prompt-shirt/internal/order"
)

type mockOrderStore struct {
	getFunc func(ctx context.Context, sessionID string) (*order.Order, error)
}

func (m *mockOrderStore) Create(ctx context.Context, o *order.Order) error {
	return errors.New("not implemented")
}

func (m *mockOrderStore) Get(ctx context.Context, sessionID string) (*order.Order, error) {
	return m.getFunc(ctx, sessionID)
}

func (m *mockOrderStore) Transition(ctx context.Context, sessionID string, from, to order.OrderStatus) (bool, *order.Order, error) {
	return false, nil, errors.New("not implemented")
}

func TestOrderService_GetOrder(t *testing.T) {
	storeErr := errors.New("connection reset")

	tests := []struct {
		name          string
		sessionID     string
		getFunc       func(ctx context.Context, sessionID string) (*order.Order, error)
		wantSessionID string
		wantErrIs     []error
		wantErrMsg    string
	}{
		{
			name:      "found",
			sessionID: "cs_test_1",
			getFunc: func(ctx context.Context, sessionID string) (*order.Order, error) {
				return &order.Order{SessionID: sessionID, Status: order.StatusPending}, nil
			},
			wantSessionID: "cs_test_1",
		},
		{
			name:      "trims_whitespace",
			sessionID: "  cs_test_2 ",
			getFunc: func(ctx context.Context, sessionID string) (*order.Order, error) {
				return &order.Order{SessionID: sessionID}, nil
			},
			wantSessionID: "cs_test_2",
		},
		{
			name:      "empty_session_id",
			sessionID: "   ",
			getFunc: func(ctx context.Context, sessionID string) (*order.Order, error) {
				return nil, errors.New("store must not be called for an empty id")
			},
			wantErrIs: []error{order.ErrValidation, order.ErrEmptySessionID},
		},
		{
			name:      "not_found",
			sessionID: "cs_missing",
			getFunc: func(ctx context.Context, sessionID string) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
			wantErrIs: []error{order.ErrOrderNotFound},
		},
		{
			name:      "store_failure",
			sessionID: "cs_test_3",
			getFunc: func(ctx context.Context, sessionID string) (*order.Order, error) {
				return nil, storeErr
			},
			wantErrIs:  []error{storeErr},
			wantErrMsg: "service: failed to fetch order: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := order.NewService(&mockOrderStore{getFunc: tt.getFunc})

			got, err := svc.GetOrder(context.Background(), tt.sessionID)

			if len(tt.wantErrIs) > 0 {
				assert.Error(t, err)
				assert.Nil(t, got)
				for _, target := range tt.wantErrIs {
					assert.ErrorIs(t, err, target)
				}
				if tt.wantErrMsg != "" {
					assert.EqualError(t, err, tt.wantErrMsg)
				}
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.wantSessionID, got.SessionID)
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to order.OrderStatus
		want     bool
	}{
		{order.StatusPending, order.StatusCompleted, true},
		{order.StatusPending, order.StatusFailed, true},
		{order.StatusPending, order.StatusPending, false},
		{order.StatusCompleted, order.StatusFailed, false},
		{order.StatusCompleted, order.StatusPending, false},
		{order.StatusFailed, order.StatusCompleted, false},
		{order.OrderStatus("shipped"), order.StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, order.CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, order.IsTerminal(order.StatusPending))
	assert.True(t, order.IsTerminal(order.StatusCompleted))
	assert.True(t, order.IsTerminal(order.StatusFailed))
	assert.False(t, order.IsTerminal(order.OrderStatus("unknown")))

	assert.True(t, order.IsValidStatus(order.StatusFailed))
	assert.False(t, order.IsValidStatus(order.OrderStatus("")))
}
