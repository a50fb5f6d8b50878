// Package sqlite implements payment.Store on SQLite (pure Go driver).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // Pure Go driver

	"github.com/alapierre/go-saferpay-client/payment"
)

var logger = logrus.WithField("component", "payment.sqlite")

// Config defines SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// Store provides SQLite persistence for payments.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ payment.Store = (*Store)(nil)

// Open opens (creating when needed) the database at path and runs migrations.
func Open(path string, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite: ping")
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	logger.WithField("path", path).Debug("payment store opened")
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		variant TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		fraud_status TEXT NOT NULL DEFAULT 'unknown',
		fraud_message TEXT NOT NULL DEFAULT '',
		total TEXT NOT NULL,
		captured_amount TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		transaction_id TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		attrs TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		modified_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_transaction_id ON payments(transaction_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create inserts p and fills in ID, Token and timestamps.
func (s *Store) Create(ctx context.Context, p *payment.Payment) error {
	const query = `
INSERT INTO payments (variant, token, status, fraud_status, fraud_message, total, captured_amount, currency,
	description, transaction_id, message, attrs, created_at, modified_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	if p.Token == "" {
		p.Token = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = payment.StatusWaiting
	}
	if p.FraudStatus == "" {
		p.FraudStatus = payment.FraudUnknown
	}
	now := s.now()
	p.CreatedAt, p.ModifiedAt = now, now

	attrs, err := encodeAttrs(p.Attrs)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query,
		p.Variant,
		p.Token,
		string(p.Status),
		string(p.FraudStatus),
		p.FraudMessage,
		p.Total.String(),
		p.CapturedAmount.String(),
		p.Currency,
		p.Description,
		p.TransactionID,
		p.Message,
		attrs,
		formatTime(p.CreatedAt),
		formatTime(p.ModifiedAt),
	)
	if err != nil {
		return errors.Wrap(err, "could not insert payment")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "could not read payment id")
	}
	p.ID = id
	return nil
}

const selectPayment = `
SELECT id, variant, token, status, fraud_status, fraud_message, total, captured_amount, currency,
	description, transaction_id, message, attrs, created_at, modified_at
FROM payments`

func (s *Store) Get(ctx context.Context, id int64) (*payment.Payment, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectPayment+` WHERE id = ?`, id))
}

func (s *Store) GetByToken(ctx context.Context, token string) (*payment.Payment, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectPayment+` WHERE token = ?`, token))
}

// Save overwrites every mutable column of p.
func (s *Store) Save(ctx context.Context, p *payment.Payment) error {
	const query = `
UPDATE payments SET status = ?, fraud_status = ?, fraud_message = ?, total = ?, captured_amount = ?,
	currency = ?, description = ?, transaction_id = ?, message = ?, attrs = ?, modified_at = ?
WHERE id = ?;`

	attrs, err := encodeAttrs(p.Attrs)
	if err != nil {
		return err
	}
	p.ModifiedAt = s.now()

	res, err := s.db.ExecContext(ctx, query,
		string(p.Status),
		string(p.FraudStatus),
		p.FraudMessage,
		p.Total.String(),
		p.CapturedAmount.String(),
		p.Currency,
		p.Description,
		p.TransactionID,
		p.Message,
		attrs,
		formatTime(p.ModifiedAt),
		p.ID,
	)
	if err != nil {
		return errors.Wrap(err, "could not update payment")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "could not update payment")
	}
	if n == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func (s *Store) scanOne(row *sql.Row) (*payment.Payment, error) {
	var (
		p                          payment.Payment
		status, fraudStatus        string
		total, captured            string
		attrs, created, modifiedAt string
	)

	err := row.Scan(
		&p.ID,
		&p.Variant,
		&p.Token,
		&status,
		&fraudStatus,
		&p.FraudMessage,
		&total,
		&captured,
		&p.Currency,
		&p.Description,
		&p.TransactionID,
		&p.Message,
		&attrs,
		&created,
		&modifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not scan payment")
	}

	p.Status = payment.Status(status)
	p.FraudStatus = payment.FraudStatus(fraudStatus)

	if p.Total, err = decimal.NewFromString(total); err != nil {
		return nil, errors.Wrapf(err, "payment %d: invalid total", p.ID)
	}
	if p.CapturedAmount, err = decimal.NewFromString(captured); err != nil {
		return nil, errors.Wrapf(err, "payment %d: invalid captured amount", p.ID)
	}
	if err := json.Unmarshal([]byte(attrs), &p.Attrs); err != nil {
		return nil, errors.Wrapf(err, "payment %d: invalid attrs", p.ID)
	}
	if p.Attrs == nil {
		p.Attrs = map[string]any{}
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, errors.Wrapf(err, "payment %d: invalid created_at", p.ID)
	}
	if p.ModifiedAt, err = time.Parse(time.RFC3339Nano, modifiedAt); err != nil {
		return nil, errors.Wrapf(err, "payment %d: invalid modified_at", p.ID)
	}

	return &p, nil
}

func encodeAttrs(attrs map[string]any) (string, error) {
	if attrs == nil {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", errors.Wrap(err, "could not encode attrs")
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
