package order

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store persists orders keyed by session id.
type Store interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, sessionID string) (*Order, error)
	// Transition moves the order from -> to as one atomic step. When the order
	// is not in from it returns applied=false and the current order, with no
	// error. A missing order yields ErrOrderNotFound; a pair CanTransition
	// rejects yields ErrInvalidTransition.
	Transition(ctx context.Context, sessionID string, from, to OrderStatus) (applied bool, current *Order, err error)
}

// MemoryStore keeps orders in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]Order
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]Order),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(_ context.Context, order *Order) error {
	if err := checkNewOrder(order); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.SessionID]; ok {
		return ErrDuplicateSession
	}
	s.orders[order.SessionID] = copyOrder(*order)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[sessionID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	out := copyOrder(o)
	return &out, nil
}

func (s *MemoryStore) Transition(_ context.Context, sessionID string, from, to OrderStatus) (bool, *Order, error) {
	if !CanTransition(from, to) {
		return false, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[sessionID]
	if !ok {
		return false, nil, ErrOrderNotFound
	}
	if o.Status != from {
		out := copyOrder(o)
		return false, &out, nil
	}

	now := s.now()
	o.Status = to
	o.UpdatedAt = now
	if to == StatusCompleted {
		o.CompletedAt = &now
	}
	s.orders[sessionID] = o

	out := copyOrder(o)
	return true, &out, nil
}

func checkNewOrder(o *Order) error {
	if !IsValidStatus(o.Status) {
		return fmt.Errorf("%w: unknown order status %q", ErrValidation, o.Status)
	}
	return nil
}

func copyOrder(o Order) Order {
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		o.CompletedAt = &t
	}
	return o
}
