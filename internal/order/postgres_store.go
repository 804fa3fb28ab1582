package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `session_id, prompt, shirt_color, shirt_size,
	customer_email, customer_first_name, customer_last_name, customer_address,
	customer_city, customer_state, customer_zip_code, customer_country,
	amount_cents, currency, status, created_at, updated_at, completed_at`

func (r *PostgresStore) Create(ctx context.Context, order *Order) error {
	if err := checkNewOrder(order); err != nil {
		return err
	}

	query := `
		INSERT INTO order_service.orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.db.Exec(ctx, query,
		order.SessionID,
		order.Prompt,
		string(order.ShirtColor),
		string(order.ShirtSize),
		order.Customer.Email,
		order.Customer.FirstName,
		order.Customer.LastName,
		order.Customer.Address,
		order.Customer.City,
		order.Customer.State,
		order.Customer.ZipCode,
		order.Customer.Country,
		order.AmountCents,
		order.Currency,
		string(order.Status),
		order.CreatedAt,
		order.UpdatedAt,
		order.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateSession
		}
		return fmt.Errorf("repository: failed to insert order %s: %w", order.SessionID, err)
	}

	return nil
}

func (r *PostgresStore) Get(ctx context.Context, sessionID string) (*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM order_service.orders
		WHERE session_id = $1
	`

	order, err := scanOrder(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", sessionID, err)
	}

	return order, nil
}

// Transition is a single conditional UPDATE, so concurrent deliveries for the
// same session cannot both apply.
func (r *PostgresStore) Transition(ctx context.Context, sessionID string, from, to OrderStatus) (bool, *Order, error) {
	if !CanTransition(from, to) {
		return false, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	query := `
		UPDATE order_service.orders
		SET status = $1, updated_at = $2, completed_at = COALESCE($3, completed_at)
		WHERE session_id = $4 AND status = $5
		RETURNING ` + orderColumns

	now := time.Now().UTC()
	var completedAt *time.Time
	if to == StatusCompleted {
		completedAt = &now
	}

	order, err := scanOrder(r.db.QueryRow(ctx, query, string(to), now, completedAt, sessionID, string(from)))
	if err == nil {
		return true, order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		log.Error().Err(err).Str("session_id", sessionID).Stringer("new_status", to).Msg("repository: failed to update order status")
		return false, nil, fmt.Errorf("repository: failed to update order status %s: %w", sessionID, err)
	}

	current, err := r.Get(ctx, sessionID)
	if err != nil {
		return false, nil, err
	}
	return false, current, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                  Order
		color, size, state string
	)
	err := row.Scan(
		&o.SessionID,
		&o.Prompt,
		&color,
		&size,
		&o.Customer.Email,
		&o.Customer.FirstName,
		&o.Customer.LastName,
		&o.Customer.Address,
		&o.Customer.City,
		&o.Customer.State,
		&o.Customer.ZipCode,
		&o.Customer.Country,
		&o.AmountCents,
		&o.Currency,
		&state,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	o.ShirtColor = ShirtColor(color)
	o.ShirtSize = ShirtSize(size)
	o.Status = OrderStatus(state)
	return &o, nil
}
