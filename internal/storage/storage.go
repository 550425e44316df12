package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Storage keeps the session map, the request history and the product catalog.
type Storage struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS session (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS payment_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL UNIQUE,
			requester TEXT NOT NULL,
			payer TEXT NOT NULL,
			amount TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_requests_requester ON payment_requests(requester)`,

		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			unit_price TEXT NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Session ---

// Get returns the session value for key.
func (s *Storage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM session WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// Set stores a session value, replacing any previous one.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	return err
}

// Delete removes a session value. Missing keys are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session WHERE key = ?", key)
	return err
}

// AccountIdentifier returns the signed-in account, or ErrNotFound.
func (s *Storage) AccountIdentifier(ctx context.Context) (string, error) {
	return s.Get(ctx, KeyAccountIdentifier)
}

func (s *Storage) SetAccountIdentifier(ctx context.Context, id string) error {
	return s.Set(ctx, KeyAccountIdentifier, id)
}

// --- Payment requests ---

// AddPaymentRequest records a submission. A blank RequestID gets a new uuid.
func (s *Storage) AddPaymentRequest(ctx context.Context, pr PaymentRequest) (*PaymentRequest, error) {
	if pr.RequestID == "" {
		pr.RequestID = uuid.NewString()
	}
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO payment_requests
			(request_id, requester, payer, amount, status, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pr.RequestID, pr.Requester, pr.Payer, pr.Amount.StringFixed(2), string(pr.Status), pr.Message, pr.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert payment request: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrAlreadyExists
	}
	pr.ID, _ = result.LastInsertId()
	pr.CreatedAt = time.Unix(pr.CreatedAt.Unix(), 0)
	return &pr, nil
}

// RecentPaymentRequests returns the newest requests sent by requester.
func (s *Storage) RecentPaymentRequests(ctx context.Context, requester string, limit int) ([]PaymentRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, requester, payer, amount, status, message, created_at
		 FROM payment_requests WHERE requester = ? ORDER BY id DESC LIMIT ?`,
		requester, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentRequest
	for rows.Next() {
		var pr PaymentRequest
		var status string
		var message sql.NullString
		var createdAt int64

		err := rows.Scan(&pr.ID, &pr.RequestID, &pr.Requester, &pr.Payer, &pr.Amount, &status, &message, &createdAt)
		if err != nil {
			return nil, err
		}
		pr.Status = RequestStatus(status)
		pr.Message = message.String
		pr.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, pr)
	}

	return out, rows.Err()
}

// --- Products ---

// UpsertProduct adds or updates a catalog entry.
func (s *Storage) UpsertProduct(ctx context.Context, p Product) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, unit_price) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			unit_price = excluded.unit_price`,
		p.ID, p.Name, p.UnitPrice.StringFixed(2),
	)
	return err
}

// GetProduct returns one catalog entry.
func (s *Storage) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, unit_price FROM products WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.UnitPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns the catalog ordered by name.
func (s *Storage) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, unit_price FROM products ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProduct removes a catalog entry.
func (s *Storage) DeleteProduct(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ParsePrice parses a catalog price such as "2.50".
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("parse price %q: negative", s)
	}
	return d, nil
}
