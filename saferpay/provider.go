package saferpay

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/alapierre/go-saferpay-client/payment"
	"github.com/alapierre/go-saferpay-client/saferpay/metrics"
	"github.com/alapierre/go-saferpay-client/saferpay/mutex"
)

// Variant is the payment variant handled by Provider.
const Variant = "saferpay"

// Keys under which Saferpay answers are kept in payment.Attrs.
const (
	AttrInitializeResponse = "saferpay_initialize_response"
	AttrAssertResponse     = "saferpay_assert_response"
	AttrCaptureResponse    = "saferpay_capture_response"
	AttrRefundResponse     = "saferpay_refund_response"
	AttrCancelResponse     = "saferpay_cancel_response"
)

var _ payment.Provider = (*Provider)(nil)

// Provider drives payments through the Saferpay Payment Page.
type Provider struct {
	facade  *Facade
	store   payment.Store
	locker  mutex.Locker
	urls    payment.URLs
	capture bool
}

type ProviderOption func(*Provider)

// WithCapture(false) leaves authorized payments in preauth until Capture is called.
func WithCapture(capture bool) ProviderOption {
	return func(p *Provider) { p.capture = capture }
}

func NewProvider(facade *Facade, store payment.Store, locker mutex.Locker, urls payment.URLs, opts ...ProviderOption) *Provider {
	p := &Provider{
		facade:  facade,
		store:   store,
		locker:  locker,
		urls:    urls,
		capture: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func paymentLog(p *payment.Payment) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"status":     p.Status,
	})
}

// withPayment runs fn on a fresh copy of p loaded while holding the payment
// lock. The result is copied back into p.
func (pr *Provider) withPayment(ctx context.Context, p *payment.Payment, fn func(cur *payment.Payment) error) error {
	unlock, err := pr.locker.Lock(ctx, "payment:"+strconv.FormatInt(p.ID, 10))
	if err != nil {
		return errors.Wrapf(err, "lock payment %d", p.ID)
	}
	defer unlock()

	cur, err := pr.store.Get(ctx, p.ID)
	if err != nil {
		return errors.Wrapf(err, "load payment %d", p.ID)
	}

	err = fn(cur)
	*p = *cur
	return err
}

func (pr *Provider) changeStatus(p *payment.Payment, status payment.Status, message string) {
	if p.Status != status {
		metrics.IncPaymentStatus(string(status))
	}
	paymentLog(p).WithField("new_status", status).Info("payment status changed")
	p.ChangeStatus(status, message)
}

// fail marks p as errored when err came from Saferpay and returns err.
func (pr *Provider) fail(ctx context.Context, p *payment.Payment, err error) error {
	if _, ok := AsPaymentError(err); !ok {
		return err
	}
	pr.changeStatus(p, payment.StatusError, err.Error())
	if saveErr := pr.store.Save(ctx, p); saveErr != nil {
		paymentLog(p).WithError(saveErr).Error("failed to save payment error status")
	}
	return err
}

// GetForm starts the payment page when needed and returns the Saferpay URL
// the payer has to be sent to.
func (pr *Provider) GetForm(ctx context.Context, p *payment.Payment) (string, error) {
	var redirectURL string

	err := pr.withPayment(ctx, p, func(cur *payment.Payment) error {
		if cur.TransactionID == "" {
			returnURL := pr.urls.Process(cur)
			res, err := pr.facade.PaymentInitialize(ctx, cur, returnURL, Notification{
				SuccessNotifyURL: returnURL,
				FailNotifyURL:    returnURL,
			})
			if err != nil {
				return pr.fail(ctx, cur, err)
			}

			cur.SetAttr(AttrInitializeResponse, res.ToMap())
			cur.TransactionID = res.Token
			if err := pr.store.Save(ctx, cur); err != nil {
				return err
			}
			paymentLog(cur).Debug("payment page initialized")
		}

		redirectURL = cur.AttrString(AttrInitializeResponse, "redirect_url")
		if redirectURL == "" {
			return errors.Wrapf(ErrInvalidState, "payment %d has no payment page", cur.ID)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return redirectURL, nil
}

// ProcessData handles the payer returning from the payment page and the
// Saferpay notify call. It returns the shop URL to redirect to.
func (pr *Provider) ProcessData(ctx context.Context, p *payment.Payment) (string, error) {
	var next string

	err := pr.withPayment(ctx, p, func(cur *payment.Payment) error {
		if cur.TransactionID == "" {
			return errors.Wrapf(ErrNoTransaction, "payment %d", cur.ID)
		}

		switch cur.Status {
		case payment.StatusRejected, payment.StatusError:
			next = pr.urls.Failure(cur)
			return nil
		case payment.StatusConfirmed, payment.StatusPreauth, payment.StatusRefunded:
			next = pr.urls.Success(cur)
			return nil
		}

		res, err := pr.facade.PaymentAssert(ctx, cur)
		if err != nil {
			return pr.fail(ctx, cur, err)
		}
		paymentLog(cur).WithField("transaction_status", res.TransactionStatus).Debug("payment asserted")
		cur.SetAttr(AttrAssertResponse, res.ToMap())

		switch res.TransactionStatus {
		case TransactionCanceled:
			pr.changeStatus(cur, payment.StatusRejected, "")
			next = pr.urls.Failure(cur)

		case TransactionCaptured:
			cur.CapturedAmount = cur.Total
			pr.changeStatus(cur, payment.StatusConfirmed, "")
			next = pr.urls.Success(cur)

		case TransactionAuthorized:
			if !pr.capture {
				pr.changeStatus(cur, payment.StatusPreauth, "")
				next = pr.urls.Success(cur)
				break
			}
			capture, err := pr.facade.TransactionCapture(ctx, res.TransactionID, decimal.Zero, cur.Currency)
			if err != nil {
				return pr.fail(ctx, cur, err)
			}
			cur.SetAttr(AttrCaptureResponse, capture.ToMap())
			if capture.Status == string(TransactionCaptured) {
				cur.CapturedAmount = cur.Total
				pr.changeStatus(cur, payment.StatusConfirmed, "")
			}
			next = pr.urls.Success(cur)

		case TransactionPending:
			cur.Message = "pending"
			next = pr.urls.Success(cur)

		default:
			return pr.fail(ctx, cur, &PaymentError{
				Message:        "Invalid response from SaferPay",
				GatewayMessage: "unknown transaction status " + string(res.TransactionStatus),
			})
		}

		return pr.store.Save(ctx, cur)
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// Capture captures a preauthorized payment. A zero amount captures the total.
func (pr *Provider) Capture(ctx context.Context, p *payment.Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	var captured decimal.Decimal

	err := pr.withPayment(ctx, p, func(cur *payment.Payment) error {
		if cur.Status != payment.StatusPreauth {
			return errors.Wrapf(ErrInvalidState, "capture of payment in status %s", cur.Status)
		}
		if amount.IsZero() {
			amount = cur.Total
		}
		if amount.IsNegative() || amount.GreaterThan(cur.Total) {
			return errors.Wrapf(ErrInvalidPayment, "capture amount %s out of range 0..%s", amount, cur.Total)
		}
		txID := cur.AttrString(AttrAssertResponse, "transaction_id")
		if txID == "" {
			return errors.Wrapf(ErrNoTransaction, "payment %d was never asserted", cur.ID)
		}

		partial := amount
		if amount.Equal(cur.Total) {
			partial = decimal.Zero
		}
		res, err := pr.facade.TransactionCapture(ctx, txID, partial, cur.Currency)
		if err != nil {
			return pr.fail(ctx, cur, err)
		}

		cur.SetAttr(AttrCaptureResponse, res.ToMap())
		if res.Status == string(TransactionCaptured) {
			cur.CapturedAmount = amount
			captured = amount
			pr.changeStatus(cur, payment.StatusConfirmed, "")
		} else {
			cur.Message = "capture " + res.Status
		}
		return pr.store.Save(ctx, cur)
	})
	return captured, err
}

// Refund returns amount of a confirmed payment. A zero amount refunds
// everything captured.
func (pr *Provider) Refund(ctx context.Context, p *payment.Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	var refunded decimal.Decimal

	err := pr.withPayment(ctx, p, func(cur *payment.Payment) error {
		if cur.Status != payment.StatusConfirmed {
			return errors.Wrapf(ErrInvalidState, "refund of payment in status %s", cur.Status)
		}
		if amount.IsZero() {
			amount = cur.CapturedAmount
		}
		if !amount.IsPositive() || amount.GreaterThan(cur.CapturedAmount) {
			return errors.Wrapf(ErrInvalidPayment, "refund amount %s out of range 0..%s", amount, cur.CapturedAmount)
		}
		captureID := pr.captureID(cur)
		if captureID == "" {
			return errors.Wrapf(ErrNoTransaction, "payment %d has no capture id", cur.ID)
		}

		res, err := pr.facade.TransactionRefund(ctx, captureID, amount, cur.Currency)
		if err != nil {
			return pr.fail(ctx, cur, err)
		}
		refund := res.ToMap()

		// a refund is a transaction of its own and has to be captured
		if res.Status == TransactionAuthorized {
			capture, err := pr.facade.TransactionCapture(ctx, res.TransactionID, decimal.Zero, cur.Currency)
			if err != nil {
				cur.SetAttr(AttrRefundResponse, refund)
				return pr.fail(ctx, cur, err)
			}
			refund["capture"] = capture.ToMap()
		}
		cur.SetAttr(AttrRefundResponse, refund)

		cur.CapturedAmount = cur.CapturedAmount.Sub(amount)
		if cur.CapturedAmount.IsZero() {
			pr.changeStatus(cur, payment.StatusRefunded, "")
		}
		refunded = amount
		return pr.store.Save(ctx, cur)
	})
	return refunded, err
}

// Release cancels a preauthorized payment.
func (pr *Provider) Release(ctx context.Context, p *payment.Payment) error {
	return pr.withPayment(ctx, p, func(cur *payment.Payment) error {
		if cur.Status != payment.StatusPreauth {
			return errors.Wrapf(ErrInvalidState, "release of payment in status %s", cur.Status)
		}
		txID := cur.AttrString(AttrAssertResponse, "transaction_id")
		if txID == "" {
			return errors.Wrapf(ErrNoTransaction, "payment %d was never asserted", cur.ID)
		}

		res, err := pr.facade.TransactionCancel(ctx, txID)
		if err != nil {
			return pr.fail(ctx, cur, err)
		}
		cur.SetAttr(AttrCancelResponse, res.ToMap())
		pr.changeStatus(cur, payment.StatusRejected, "released")
		return pr.store.Save(ctx, cur)
	})
}

func (pr *Provider) captureID(p *payment.Payment) string {
	if id := p.AttrString(AttrCaptureResponse, "capture_id"); id != "" {
		return id
	}
	return p.AttrString(AttrAssertResponse, "capture_id")
}
