// Package payment holds the gateway independent payment model: the record a
// shop keeps for each payment, its status life cycle and the contracts for
// storage and payment providers.
package payment

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the life cycle state of a payment.
type Status string

const (
	// StatusWaiting - payment created, waiting for the payer
	StatusWaiting Status = "waiting"
	// StatusPreauth - amount authorized but not captured yet
	StatusPreauth Status = "preauth"
	// StatusConfirmed - funds captured
	StatusConfirmed Status = "confirmed"
	// StatusRejected - payment canceled or declined
	StatusRejected Status = "rejected"
	// StatusRefunded - captured funds were returned in full
	StatusRefunded Status = "refunded"
	// StatusError - communication with the gateway failed
	StatusError Status = "error"
	// StatusInput - payer has to provide more data
	StatusInput Status = "input"
)

// FraudStatus is the result of the gateway fraud check.
type FraudStatus string

const (
	FraudUnknown FraudStatus = "unknown"
	FraudAccept  FraudStatus = "accept"
	FraudReject  FraudStatus = "reject"
	FraudReview  FraudStatus = "review"
)

var (
	// ErrNotFound is returned by a Store when no payment matches.
	ErrNotFound = errors.New("payment not found")
)

// Payment is a single payment attempt.
type Payment struct {
	ID             int64
	Variant        string
	Token          string
	Status         Status
	FraudStatus    FraudStatus
	FraudMessage   string
	Total          decimal.Decimal
	CapturedAmount decimal.Decimal
	Currency       string
	Description    string
	TransactionID  string
	Message        string
	// Attrs keeps gateway specific data, persisted as JSON.
	Attrs      map[string]any
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// New returns a waiting payment for the given variant.
func New(variant string, total decimal.Decimal, currency, description string) *Payment {
	return &Payment{
		Variant:     variant,
		Status:      StatusWaiting,
		FraudStatus: FraudUnknown,
		Total:       total,
		Currency:    currency,
		Description: description,
		Attrs:       map[string]any{},
	}
}

// ChangeStatus sets the status and the human readable message.
func (p *Payment) ChangeStatus(status Status, message string) {
	p.Status = status
	p.Message = message
}

// OrderID is the merchant reference sent to the gateway.
func (p *Payment) OrderID() string {
	return strconv.FormatInt(p.ID, 10)
}

// SetAttr stores v under key, creating the attrs map when needed.
func (p *Payment) SetAttr(key string, v any) {
	if p.Attrs == nil {
		p.Attrs = map[string]any{}
	}
	p.Attrs[key] = v
}

// AttrMap returns the attribute stored under key when it is an object.
func (p *Payment) AttrMap(key string) (map[string]any, bool) {
	v, ok := p.Attrs[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// AttrString returns field of the object attribute key as a string.
func (p *Payment) AttrString(key, field string) string {
	m, ok := p.AttrMap(key)
	if !ok {
		return ""
	}
	s, _ := m[field].(string)
	return s
}

// Store persists payments.
type Store interface {
	// Create inserts p, assigning ID, Token and timestamps.
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id int64) (*Payment, error)
	GetByToken(ctx context.Context, token string) (*Payment, error)
	// Save overwrites the stored state of p.
	Save(ctx context.Context, p *Payment) error
}

// Provider talks to a payment gateway on behalf of a payment. GetForm and
// ProcessData return the URL the payer has to be redirected to.
type Provider interface {
	GetForm(ctx context.Context, p *Payment) (string, error)
	ProcessData(ctx context.Context, p *Payment) (string, error)
	Capture(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error)
	Refund(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error)
	Release(ctx context.Context, p *Payment) error
}
