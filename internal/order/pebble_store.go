package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

const pebbleKeyPrefix = "order/"

// PebbleStore keeps orders in an embedded Pebble database as JSON values.
// Pebble has no conditional write, so read-modify-write runs under mu; the
// database must not be shared with another process.
type PebbleStore struct {
	mu  sync.Mutex
	db  *pebble.DB
	now func() time.Time
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{
		db:  d,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func pebbleKey(sessionID string) []byte { return []byte(pebbleKeyPrefix + sessionID) }

func (p *PebbleStore) Create(_ context.Context, order *Order) error {
	if err := checkNewOrder(order); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.read(order.SessionID)
	if err == nil {
		return ErrDuplicateSession
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return err
	}

	return p.write(order)
}

func (p *PebbleStore) Get(_ context.Context, sessionID string) (*Order, error) {
	return p.read(sessionID)
}

func (p *PebbleStore) Transition(_ context.Context, sessionID string, from, to OrderStatus) (bool, *Order, error) {
	if !CanTransition(from, to) {
		return false, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.read(sessionID)
	if err != nil {
		return false, nil, err
	}
	if cur.Status != from {
		return false, cur, nil
	}

	now := p.now()
	cur.Status = to
	cur.UpdatedAt = now
	if to == StatusCompleted {
		cur.CompletedAt = &now
	}
	if err := p.write(cur); err != nil {
		return false, nil, err
	}
	return true, cur, nil
}

func (p *PebbleStore) read(sessionID string) (*Order, error) {
	v, closer, err := p.db.Get(pebbleKey(sessionID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("pebble get %s: %w", sessionID, err)
	}
	defer closer.Close()

	var o Order
	if err := json.Unmarshal(v, &o); err != nil {
		return nil, fmt.Errorf("pebble decode %s: %w", sessionID, err)
	}
	return &o, nil
}

func (p *PebbleStore) write(o *Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("pebble encode %s: %w", o.SessionID, err)
	}
	if err := p.db.Set(pebbleKey(o.SessionID), b, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %s: %w", o.SessionID, err)
	}
	return nil
}
