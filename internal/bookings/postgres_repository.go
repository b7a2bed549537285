package bookings

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_tickets/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const pqUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.PingContext(ctx); e2 != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "bookings_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// CreatePendingPayment is insert-or-ignore: retrying intent creation keeps the first marker.
func (r *Repository) CreatePendingPayment(ctx context.Context, p *domain.PendingPayment) error {
	itemsJSON, err := json.Marshal(p.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal pending items: %w", err)
	}

	query := `INSERT INTO pending_payments (payment_intent_id, user_email, user_name, items, amount, currency, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	          ON CONFLICT (payment_intent_id) DO NOTHING`

	_, err = r.db.ExecContext(ctx, query,
		p.PaymentIntentID,
		p.UserEmail,
		p.UserName,
		itemsJSON,
		p.Amount,
		p.Currency,
		domain.PendingAwaitingBooking)
	if err != nil {
		return fmt.Errorf("insert pending payment: %w", err)
	}
	return nil
}

func (r *Repository) SaveBookings(ctx context.Context, paymentIntentID string, bookings []domain.Booking) ([]domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := `INSERT INTO bookings (id, payment_intent_id, event_id, event_title, tickets, user_email, user_name, total_amount, currency, status, line_no, booked_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	           ON CONFLICT (payment_intent_id, event_id) DO NOTHING`

	var inserted int64
	for i, b := range bookings {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if b.BookedAt.IsZero() {
			b.BookedAt = time.Now().UTC()
		}
		ticketsJSON, err := json.Marshal(b.Tickets)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal booking tickets: %w", err)
		}
		res, err := tx.ExecContext(ctx, insert,
			b.ID,
			paymentIntentID,
			b.EventID,
			b.EventTitle,
			ticketsJSON,
			b.UserEmail,
			b.UserName,
			b.TotalAmount,
			b.Currency,
			domain.BookingConfirmed,
			i,
			b.BookedAt)
		if err != nil {
			return nil, mapInsertError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("insert booking rows affected: %w", err)
		}
		inserted += n
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE pending_payments SET status = $2, updated_at = NOW() WHERE payment_intent_id = $1`,
		paymentIntentID, domain.PendingBooked)
	if err != nil {
		return nil, fmt.Errorf("mark pending payment booked: %w", err)
	}

	stored, err := listBookings(ctx, tx, `WHERE payment_intent_id = $1 ORDER BY line_no, booked_at`, paymentIntentID)
	if err != nil {
		return nil, err
	}

	if inserted > 0 && len(stored) > 0 {
		ev := domain.BookingConfirmedEvent{
			PaymentIntentID: paymentIntentID,
			UserEmail:       stored[0].UserEmail,
			UserName:        stored[0].UserName,
			Bookings:        stored,
			ConfirmedAt:     time.Now().UTC(),
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
			paymentIntentID, domain.EventBookingConfirmed, payload)
		if err != nil {
			return nil, fmt.Errorf("insert outbox event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bookings: %w", err)
	}
	return stored, nil
}

func (r *Repository) ListBookingsByIntent(ctx context.Context, paymentIntentID string) ([]domain.Booking, error) {
	return listBookings(ctx, r.db, `WHERE payment_intent_id = $1 ORDER BY line_no, booked_at`, paymentIntentID)
}

func (r *Repository) ListBookingsByUser(ctx context.Context, userEmail string) ([]domain.Booking, error) {
	return listBookings(ctx, r.db, `WHERE user_email = $1 ORDER BY booked_at DESC, line_no`, userEmail)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listBookings(ctx context.Context, q querier, where string, arg any) ([]domain.Booking, error) {
	query := `SELECT id, payment_intent_id, event_id, event_title, tickets, user_email, user_name, total_amount, currency, status, booked_at
	          FROM bookings ` + where

	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		var b domain.Booking
		var ticketsJSON []byte
		if err := rows.Scan(
			&b.ID,
			&b.PaymentIntentID,
			&b.EventID,
			&b.EventTitle,
			&ticketsJSON,
			&b.UserEmail,
			&b.UserName,
			&b.TotalAmount,
			&b.Currency,
			&b.Status,
			&b.BookedAt,
		); err != nil {
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		if err := json.Unmarshal(ticketsJSON, &b.Tickets); err != nil {
			return nil, fmt.Errorf("unmarshal booking tickets: %w", err)
		}
		out = append(out, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

const pendingColumns = `payment_intent_id, user_email, user_name, items, amount, currency, status, attempts, last_error, created_at, updated_at`

func (r *Repository) ListPendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]*domain.PendingPayment, error) {
	query := `SELECT ` + pendingColumns + `
	          FROM pending_payments
	          WHERE status = $1 AND created_at < $2
	          ORDER BY created_at
	          LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, domain.PendingAwaitingBooking, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending payments: %w", err)
	}
	defer rows.Close()

	var out []*domain.PendingPayment
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// GetPendingPayment returns the marker whatever its status.
func (r *Repository) GetPendingPayment(ctx context.Context, paymentIntentID string) (*domain.PendingPayment, error) {
	query := `SELECT ` + pendingColumns + `
	          FROM pending_payments
	          WHERE payment_intent_id = $1`

	p, err := scanPending(r.db.QueryRowContext(ctx, query, paymentIntentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPendingPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPending(row rowScanner) (*domain.PendingPayment, error) {
	var p domain.PendingPayment
	var itemsJSON []byte
	err := row.Scan(
		&p.PaymentIntentID,
		&p.UserEmail,
		&p.UserName,
		&itemsJSON,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.Attempts,
		&p.LastError,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan pending payment row: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &p.Items); err != nil {
		return nil, fmt.Errorf("unmarshal pending items: %w", err)
	}
	return &p, nil
}

// MarkPendingPayment records a reconciliation attempt.
func (r *Repository) MarkPendingPayment(ctx context.Context, paymentIntentID string, status domain.PendingStatus, lastErr string) error {
	query := `UPDATE pending_payments
	          SET status = $2, last_error = $3, attempts = attempts + 1, updated_at = NOW()
	          WHERE payment_intent_id = $1`

	res, err := r.db.ExecContext(ctx, query, paymentIntentID, status, lastErr)
	if err != nil {
		return fmt.Errorf("update pending payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pending payment rows affected: %w", err)
	}
	if n == 0 {
		return ErrPendingPaymentNotFound
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events
	          WHERE processed_at IS NULL
	          ORDER BY id
	          LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func mapInsertError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrDuplicateBooking
	}
	return fmt.Errorf("insert booking: %w", err)
}
