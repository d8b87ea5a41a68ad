package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/repository"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	SSLMode           string
	MigrationsDirPath string
}

func (c *Credentials) dsn() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

// SessionRepository stores checkout sessions in the checkout_sessions table.
type SessionRepository struct {
	db *sql.DB
}

var _ repository.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(ctx context.Context, cred *Credentials) (*SessionRepository, error) {
	db, err := sql.Open("postgres", cred.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &SessionRepository{db: db}, nil
}

func (r *SessionRepository) RunMigrations(cred *Credentials) error {
	driver, err := migratepg.WithInstance(r.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *SessionRepository) Close() error {
	return r.db.Close()
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SessionRepository) CreateSession(ctx context.Context, s *domain.CheckoutSession) error {
	address, lines, report, err := encodeSession(s)
	if err != nil {
		return err
	}

	query := `INSERT INTO checkout_sessions
		(id, buyer_id, address, state, amount, currency, gateway_order_id, payment_id, lines, report, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.BuyerID, string(address), string(s.State), s.Amount, s.Currency, s.GatewayOrderID,
		nullString(s.PaymentID), string(lines), nullJSON(report), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate checkout session %s: %w", s.ID, err)
		}
		return fmt.Errorf("failed to insert checkout session: %w", err)
	}
	return nil
}

const sessionColumns = `id, buyer_id, address, state, amount, currency, gateway_order_id, payment_id, lines, report, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.CheckoutSession, error) {
	var (
		s                      domain.CheckoutSession
		state                  string
		paymentID              sql.NullString
		address, lines, report []byte
	)
	err := row.Scan(
		&s.ID, &s.BuyerID, &address, &state, &s.Amount, &s.Currency, &s.GatewayOrderID,
		&paymentID, &lines, &report, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.State = domain.CheckoutState(state)
	s.PaymentID = paymentID.String
	if err := json.Unmarshal(address, &s.Address); err != nil {
		return nil, fmt.Errorf("failed to decode session address: %w", err)
	}
	if err := json.Unmarshal(lines, &s.Lines); err != nil {
		return nil, fmt.Errorf("failed to decode session lines: %w", err)
	}
	if len(report) > 0 {
		s.Report = &domain.CommitReport{}
		if err := json.Unmarshal(report, s.Report); err != nil {
			return nil, fmt.Errorf("failed to decode session report: %w", err)
		}
	}
	return &s, nil
}

func (r *SessionRepository) GetSession(ctx context.Context, buyerID, id string) (*domain.CheckoutSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM checkout_sessions WHERE id = $1 AND buyer_id = $2`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id, buyerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrSessionNotFound
		}
		// malformed uuid input is reported by postgres as invalid_text_representation
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "22P02" {
			return nil, repository.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) ListByBuyer(ctx context.Context, buyerID string, states ...domain.CheckoutState) ([]*domain.CheckoutSession, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}
	query := `SELECT ` + sessionColumns + ` FROM checkout_sessions
		WHERE buyer_id = $1 AND state = ANY($2)
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, buyerID, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to list buyer sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (r *SessionRepository) ListStale(ctx context.Context, state domain.CheckoutState, before time.Time, limit int) ([]*domain.CheckoutSession, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + sessionColumns + ` FROM checkout_sessions
		WHERE state = $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, string(state), before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]*domain.CheckoutSession, error) {
	sessions := make([]*domain.CheckoutSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkout session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkout sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) UpdateSession(ctx context.Context, s *domain.CheckoutSession, from domain.CheckoutState) error {
	_, _, report, err := encodeSession(s)
	if err != nil {
		return err
	}

	query := `UPDATE checkout_sessions
		SET state = $1, payment_id = $2, report = $3, updated_at = $4
		WHERE id = $5 AND buyer_id = $6 AND state = $7`

	result, err := r.db.ExecContext(ctx, query,
		string(s.State), nullString(s.PaymentID), nullJSON(report), s.UpdatedAt, s.ID, s.BuyerID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update checkout session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return repository.ErrStaleSession
	}
	return nil
}

func encodeSession(s *domain.CheckoutSession) (address, lines, report []byte, err error) {
	if address, err = json.Marshal(s.Address); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode session address: %w", err)
	}
	if lines, err = json.Marshal(s.Lines); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode session lines: %w", err)
	}
	if s.Report != nil {
		if report, err = json.Marshal(s.Report); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode session report: %w", err)
		}
	}
	return address, lines, report, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullJSON passes JSON as text; lib/pq would encode a []byte as bytea.
func nullJSON(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}
