package saferpay

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "saferpay")

// SpecVersion is the Saferpay JSON API version the requests are written against.
const SpecVersion = "1.45"

// TransactionStatus is the Transaction.Status reported by Saferpay.
type TransactionStatus string

const (
	TransactionAuthorized TransactionStatus = "AUTHORIZED"
	TransactionCanceled   TransactionStatus = "CANCELED"
	TransactionCaptured   TransactionStatus = "CAPTURED"
	TransactionPending    TransactionStatus = "PENDING"
)

var (
	// ErrInvalidPayment marks a payment that lacks data required by the call.
	ErrInvalidPayment = errors.New("invalid payment")
	// ErrNoTransaction is returned when a payment was never sent to Saferpay.
	ErrNoTransaction = errors.New("payment has no Saferpay transaction")
	// ErrInvalidState is returned when an operation does not apply to the payment status.
	ErrInvalidState = errors.New("operation not allowed in current payment status")
)

// PaymentError is a failed interaction with Saferpay. Message is safe to show
// to the payer; GatewayMessage carries the technical details.
type PaymentError struct {
	Message        string
	GatewayMessage string
	Err            error
}

func (e *PaymentError) Error() string {
	if e.GatewayMessage == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.GatewayMessage)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func newPaymentError(message string) *PaymentError {
	return &PaymentError{Message: message}
}

// AsPaymentError reports whether err is (or wraps) a *PaymentError.
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
