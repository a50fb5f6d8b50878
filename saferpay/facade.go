package saferpay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/alapierre/go-saferpay-client/payment"
	"github.com/alapierre/go-saferpay-client/saferpay/api"
	"github.com/alapierre/go-saferpay-client/saferpay/metrics"
)

// Credentials identify the merchant at Saferpay. Username and Password are the
// JSON API basic auth credentials from the Saferpay back office.
type Credentials struct {
	CustomerID string
	TerminalID string
	Username   string
	Password   string
}

type operation struct {
	endpoint string
	// action completes "Failed to ... at SaferPay"
	action string
}

var (
	opInitialize = operation{"PaymentPage/Initialize", "create payment"}
	opAssert     = operation{"PaymentPage/Assert", "assert payment"}
	opCapture    = operation{"Transaction/Capture", "capture transaction"}
	opCancel     = operation{"Transaction/Cancel", "cancel transaction"}
	opRefund     = operation{"Transaction/Refund", "refund transaction"}
)

// Facade is the only place that talks to Saferpay. Every call is validated
// against the RequestId it was sent with.
type Facade struct {
	client       api.Client
	env          Environment
	creds        Credentials
	maxRetries   int
	initialWait  time.Duration
	maxWait      time.Duration
	newRequestID func() string
}

type Option func(*Facade)

// WithMaxRetries sets how many times a call failing with a transport error or
// HTTP 5xx is repeated. 0 disables retries.
func WithMaxRetries(n int) Option {
	return func(f *Facade) {
		if n >= 0 {
			f.maxRetries = n
		}
	}
}

// WithRetryInterval sets the exponential backoff bounds between retries.
func WithRetryInterval(initial, max time.Duration) Option {
	return func(f *Facade) {
		f.initialWait = initial
		f.maxWait = max
	}
}

// WithAPIClient replaces the HTTP transport.
func WithAPIClient(c api.Client) Option {
	return func(f *Facade) { f.client = c }
}

// WithRequestIDGenerator replaces the UUIDv4 request id source.
func WithRequestIDGenerator(fn func() string) Option {
	return func(f *Facade) { f.newRequestID = fn }
}

// NewFacade creates a facade for the given environment. httpClient may be nil.
func NewFacade(env Environment, creds Credentials, httpClient *http.Client, opts ...Option) *Facade {
	f := &Facade{
		env:          env,
		creds:        creds,
		maxRetries:   2,
		initialWait:  500 * time.Millisecond,
		maxWait:      5 * time.Second,
		newRequestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = api.New(env.PaymentURL(), api.Credentials{Username: creds.Username, Password: creds.Password}, httpClient)
	}
	return f
}

func (f *Facade) Environment() Environment { return f.env }

func (f *Facade) Credentials() Credentials { return f.creds }

// BaseURL is the Payment API root the facade posts to.
func (f *Facade) BaseURL() string { return f.env.PaymentURL() }

// PaymentInitialize creates a new payment page at Saferpay. The payer has to
// be redirected to the returned RedirectURL.
func (f *Facade) PaymentInitialize(ctx context.Context, p *payment.Payment, returnURL string, notify Notification) (*InitializeResponse, error) {
	if p.TransactionID != "" {
		return nil, newPaymentError("This payment has already been processed")
	}
	if err := validateInitialize(p); err != nil {
		return nil, err
	}

	value, err := MinorUnits(p.Total, p.Currency)
	if err != nil {
		return nil, err
	}

	req := initializeRequest{
		TerminalID:   f.creds.TerminalID,
		Amount:       Amount{Value: value, CurrencyCode: p.Currency},
		OrderID:      p.OrderID(),
		Description:  p.Description,
		ReturnURL:    returnURL,
		Notification: notify,
	}

	body, err := f.call(ctx, opInitialize, req)
	if err != nil {
		return nil, err
	}
	return ParseInitializeResponse(body)
}

// PaymentAssert reads the outcome of the payment page. Depending on the
// payment method the transaction is AUTHORIZED or already CAPTURED. A payer
// who failed or aborted on the payment page results in an HTTP error.
func (f *Facade) PaymentAssert(ctx context.Context, p *payment.Payment) (*AssertResponse, error) {
	if p.TransactionID == "" {
		return nil, errors.Wrap(ErrNoTransaction, "The payment has no transaction ID, but it is required")
	}

	body, err := f.call(ctx, opAssert, assertRequest{Token: p.TransactionID})
	if err != nil {
		return nil, err
	}
	return ParseAssertResponse(body)
}

// TransactionCapture captures an authorized transaction. A zero amount
// captures the whole authorized amount.
func (f *Facade) TransactionCapture(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (*CaptureResponse, error) {
	if transactionID == "" {
		return nil, errors.Wrap(ErrNoTransaction, "capture requires a transaction id")
	}

	req := transactionRequest{TransactionID: transactionID}
	if !amount.IsZero() {
		value, err := MinorUnits(amount, currency)
		if err != nil {
			return nil, err
		}
		req.Amount = &Amount{Value: value, CurrencyCode: currency}
	}

	body, err := f.call(ctx, opCapture, req)
	if err != nil {
		return nil, err
	}
	return ParseCaptureResponse(body)
}

// TransactionCancel releases an authorized, not yet captured transaction.
func (f *Facade) TransactionCancel(ctx context.Context, transactionID string) (*CancelResponse, error) {
	if transactionID == "" {
		return nil, errors.Wrap(ErrNoTransaction, "cancel requires a transaction id")
	}

	body, err := f.call(ctx, opCancel, transactionRequest{TransactionID: transactionID})
	if err != nil {
		return nil, err
	}
	return ParseCancelResponse(body)
}

// TransactionRefund refunds amount of a captured transaction.
func (f *Facade) TransactionRefund(ctx context.Context, captureID string, amount decimal.Decimal, currency string) (*RefundResponse, error) {
	if captureID == "" {
		return nil, errors.Wrap(ErrNoTransaction, "refund requires a capture id")
	}
	if !amount.IsPositive() {
		return nil, errors.Wrapf(ErrInvalidPayment, "refund amount must be positive, got %s", amount)
	}

	value, err := MinorUnits(amount, currency)
	if err != nil {
		return nil, err
	}

	body, err := f.call(ctx, opRefund, refundRequest{
		CaptureID: captureID,
		Amount:    Amount{Value: value, CurrencyCode: currency},
	})
	if err != nil {
		return nil, err
	}
	return ParseRefundResponse(body)
}

func (f *Facade) header(requestID string, retry int) RequestHeader {
	return RequestHeader{
		SpecVersion:    SpecVersion,
		CustomerID:     f.creds.CustomerID,
		RequestID:      requestID,
		RetryIndicator: retry,
	}
}

// httpFailure is an answer with status >= 400.
type httpFailure struct {
	res *api.Response
	err error
}

func (h *httpFailure) Error() string { return h.err.Error() }
func (h *httpFailure) Unwrap() error { return h.err }

// call sends req and returns the body once its RequestId is verified.
func (f *Facade) call(ctx context.Context, op operation, req request) ([]byte, error) {
	requestID := f.newRequestID()
	log := logger.WithFields(logrus.Fields{
		"operation":  op.endpoint,
		"request_id": requestID,
	})

	start := time.Now()
	attempt := 0

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		retry := attempt
		attempt++
		if retry > 0 {
			metrics.IncRetry(op.endpoint)
			log.WithField("retry", retry).Warn("retrying Saferpay request")
		}

		res, err := f.client.Post(ctx, op.endpoint, encodeRequest(req, f.header(requestID, retry)))
		if err == nil {
			return res.Body, nil
		}

		var reqErr *api.RequestError
		if errors.As(err, &reqErr) {
			failure := &httpFailure{res: res, err: err}
			if reqErr.Temporary() {
				return nil, failure
			}
			return nil, backoff.Permanent(failure)
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, backoff.WithBackOff(f.newBackOff()), backoff.WithMaxTries(uint(f.maxRetries+1)))

	if err != nil {
		var failure *httpFailure
		if errors.As(err, &failure) {
			er := ErrorResponseFrom(failure.res)
			metrics.ObserveRequest(op.endpoint, metrics.OutcomeHTTPError, time.Since(start))
			log.WithFields(logrus.Fields(er.ToMap())).Warn("Saferpay call failed")
			return nil, &PaymentError{
				Message:        fmt.Sprintf("Failed to %s at SaferPay", op.action),
				GatewayMessage: fmt.Sprintf("ErrorMessage=%q ErrorDetail=%q", er.Message, er.Detail),
				Err:            err,
			}
		}

		metrics.ObserveRequest(op.endpoint, metrics.OutcomeTransport, time.Since(start))
		log.WithError(err).Warn("Saferpay unreachable")
		return nil, &PaymentError{
			Message:        "Failed to connect to SaferPay",
			GatewayMessage: err.Error(),
			Err:            err,
		}
	}

	echoed, err := echoedRequestID(body)
	if err != nil {
		metrics.ObserveRequest(op.endpoint, metrics.OutcomeInvalid, time.Since(start))
		return nil, &PaymentError{
			Message:        "Failed to parse the response from SaferPay",
			GatewayMessage: "Invalid JSON response",
			Err:            err,
		}
	}
	if echoed != requestID {
		metrics.ObserveRequest(op.endpoint, metrics.OutcomeIDMismatch, time.Since(start))
		return nil, &PaymentError{
			Message:        "SaferPay response RequestId doesn't match our request",
			GatewayMessage: fmt.Sprintf("Expected %s, got %s", requestID, echoed),
		}
	}

	metrics.ObserveRequest(op.endpoint, metrics.OutcomeOK, time.Since(start))
	log.WithField("attempts", attempt).Debug("Saferpay call succeeded")
	return body, nil
}

func (f *Facade) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialWait
	b.MaxInterval = f.maxWait
	return b
}

func validateInitialize(p *payment.Payment) error {
	if p.Currency == "" {
		return errors.Wrap(ErrInvalidPayment, "The payment has no currency, but it is required")
	}
	if !p.Total.IsPositive() {
		return errors.Wrap(ErrInvalidPayment, "The payment has no total amount, but it is required")
	}
	if p.Description == "" {
		return errors.Wrap(ErrInvalidPayment, "The payment has no description, but it is required")
	}
	return nil
}
