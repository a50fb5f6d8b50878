package saferpay

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alapierre/go-saferpay-client/payment"
	"github.com/alapierre/go-saferpay-client/saferpay/api"
	"github.com/alapierre/go-saferpay-client/saferpay/metrics"
)

func testPayment() *payment.Payment {
	p := payment.New(Variant, decimal.RequireFromString("100.00"), "CHF", "Test payment")
	p.ID = 42
	p.Token = "tok-42"
	return p
}

func fixedIDs(ids ...string) Option {
	i := 0
	return WithRequestIDGenerator(func() string {
		id := ids[i%len(ids)]
		i++
		return id
	})
}

func TestFacadeAccessors(t *testing.T) {
	f := NewFacade(Prod, testCredentials, nil)
	assert.Equal(t, Prod, f.Environment())
	assert.Equal(t, testCredentials, f.Credentials())
	assert.Equal(t, "https://www.saferpay.com/api/Payment/v1", f.BaseURL())

	f = NewFacade(Test, testCredentials, http.DefaultClient)
	assert.Equal(t, "https://test.saferpay.com/api/Payment/v1", f.BaseURL())
}

func TestPaymentInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("PaymentPage/Initialize", initializeOK("test-token", "https://test-redirect.com"))
		f := newTestFacade(t, srv, fixedIDs("req-1"))

		res, err := f.PaymentInitialize(ctx, testPayment(), "https://shop.example/return", Notification{
			SuccessNotifyURL: "https://shop.example/ok",
			FailNotifyURL:    "https://shop.example/fail",
		})
		require.NoError(t, err)
		assert.Equal(t, "test-token", res.Token)
		assert.Equal(t, "https://test-redirect.com", res.RedirectURL)
		assert.Equal(t, "req-1", res.RequestID)

		calls := srv.recorded()
		require.Len(t, calls, 1)
		call := calls[0]
		assert.Equal(t, testCredentials.Username, call.User)
		assert.Equal(t, testCredentials.Password, call.Password)

		h := call.header()
		assert.Equal(t, SpecVersion, h["SpecVersion"])
		assert.Equal(t, "123456", h["CustomerId"])
		assert.Equal(t, "req-1", h["RequestId"])
		assert.Equal(t, float64(0), h["RetryIndicator"])

		assert.Equal(t, "17654321", call.Body["TerminalId"])
		p := call.Body["Payment"].(map[string]any)
		assert.Equal(t, map[string]any{"Value": "10000", "CurrencyCode": "CHF"}, p["Amount"])
		assert.Equal(t, "42", p["OrderId"])
		assert.Equal(t, "Test payment", p["Description"])
		assert.Equal(t, map[string]any{"Url": "https://shop.example/return"}, call.Body["ReturnUrl"])
		assert.Equal(t, map[string]any{
			"SuccessNotifyUrl": "https://shop.example/ok",
			"FailNotifyUrl":    "https://shop.example/fail",
		}, call.Body["Notification"])
	})

	t.Run("notification omitted when empty", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("PaymentPage/Initialize", initializeOK("t", "u"))
		f := newTestFacade(t, srv)

		_, err := f.PaymentInitialize(ctx, testPayment(), "https://shop.example/return", Notification{})
		require.NoError(t, err)
		assert.NotContains(t, srv.recorded()[0].Body, "Notification")
	})

	t.Run("already processed", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		f := newTestFacade(t, srv)

		p := testPayment()
		p.TransactionID = "existing"
		_, err := f.PaymentInitialize(ctx, p, "u", Notification{})
		requirePaymentError(t, err, "This payment has already been processed")
		assert.Empty(t, srv.recorded())
	})

	t.Run("validation", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		f := newTestFacade(t, srv)

		for name, mutate := range map[string]func(p *payment.Payment){
			"currency":    func(p *payment.Payment) { p.Currency = "" },
			"total":       func(p *payment.Payment) { p.Total = decimal.Zero },
			"description": func(p *payment.Payment) { p.Description = "" },
		} {
			t.Run(name, func(t *testing.T) {
				p := testPayment()
				mutate(p)
				_, err := f.PaymentInitialize(ctx, p, "u", Notification{})
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPayment))
				assert.Contains(t, err.Error(), name)
			})
		}
		assert.Empty(t, srv.recorded())
	})

	t.Run("http error is not retried", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("PaymentPage/Initialize", failWith(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", "Payment.Amount.Value: invalid"))
		f := newTestFacade(t, srv)

		_, err := f.PaymentInitialize(ctx, testPayment(), "u", Notification{})
		pe, isPE := AsPaymentError(err)
		require.True(t, isPE)
		assert.Equal(t, "Failed to create payment at SaferPay", pe.Message)
		assert.Equal(t, `ErrorMessage="Request validation failed" ErrorDetail="Payment.Amount.Value: invalid"`, pe.GatewayMessage)

		var reqErr *api.RequestError
		require.True(t, errors.As(err, &reqErr))
		assert.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
		assert.Len(t, srv.recorded(), 1)
	})

	t.Run("http error is logged with gateway fields", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("PaymentPage/Initialize", failWith(http.StatusPaymentRequired, "3DS_AUTHENTICATION_FAILED", "Payer authentication failed", "3DS declined"))
		f := newTestFacade(t, srv, fixedIDs("req-log"))

		hook := logtest.NewGlobal()
		defer hook.Reset()

		_, err := f.PaymentInitialize(ctx, testPayment(), "u", Notification{})
		require.Error(t, err)

		var entry *logrus.Entry
		for _, e := range hook.AllEntries() {
			if e.Message == "Saferpay call failed" {
				entry = e
			}
		}
		require.NotNil(t, entry)
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, "PaymentPage/Initialize", entry.Data["operation"])
		assert.Equal(t, "req-log", entry.Data["request_id"])
		assert.Equal(t, "3DS_AUTHENTICATION_FAILED", entry.Data["name"])
		assert.Equal(t, "Payer authentication failed", entry.Data["message"])
		assert.Equal(t, "3DS declined", entry.Data["detail"])
		assert.Equal(t, http.StatusPaymentRequired, entry.Data["code"])
	})

	t.Run("invalid response", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("PaymentPage/Initialize", ok(map[string]any{"Token": "only-token"}))
		f := newTestFacade(t, srv)

		_, err := f.PaymentInitialize(ctx, testPayment(), "u", Notification{})
		requirePaymentError(t, err, "Invalid response from SaferPay")
	})
}

func TestPaymentAssert(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("PaymentPage/Assert", assertOK("tx-1", TransactionAuthorized, ""))
		f := newTestFacade(t, srv)

		p := testPayment()
		p.TransactionID = "page-token"
		res, err := f.PaymentAssert(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "tx-1", res.TransactionID)
		assert.Equal(t, TransactionAuthorized, res.TransactionStatus)
		assert.Equal(t, "page-token", srv.recorded()[0].Body["Token"])
	})

	t.Run("no transaction", func(t *testing.T) {
		f := newTestFacade(t, newFakeSaferpay(t))
		_, err := f.PaymentAssert(ctx, testPayment())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoTransaction))
	})

	t.Run("aborted by payer", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("PaymentPage/Assert", failWith(http.StatusPaymentRequired, "TRANSACTION_ABORTED", "Transaction aborted", "The payer aborted the transaction"))
		f := newTestFacade(t, srv)

		p := testPayment()
		p.TransactionID = "page-token"
		_, err := f.PaymentAssert(ctx, p)
		requirePaymentError(t, err, "Failed to assert payment at SaferPay")
	})
}

func TestTransactionCapture(t *testing.T) {
	ctx := context.Background()

	t.Run("full", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("Transaction/Capture", captureOK("cap-1"))
		f := newTestFacade(t, srv)

		res, err := f.TransactionCapture(ctx, "tx-1", decimal.Zero, "CHF")
		require.NoError(t, err)
		assert.Equal(t, "cap-1", res.CaptureID)
		assert.Equal(t, "CAPTURED", res.Status)

		body := srv.recorded()[0].Body
		assert.Equal(t, map[string]any{"TransactionId": "tx-1"}, body["TransactionReference"])
		assert.NotContains(t, body, "Amount")
	})

	t.Run("partial", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("Transaction/Capture", captureOK("cap-2"))
		f := newTestFacade(t, srv)

		_, err := f.TransactionCapture(ctx, "tx-1", decimal.RequireFromString("12.34"), "EUR")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"Value": "1234", "CurrencyCode": "EUR"}, srv.recorded()[0].Body["Amount"])
	})

	t.Run("declined", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("Transaction/Capture", failWith(http.StatusPaymentRequired, "TRANSACTION_DECLINED", "Declined"))
		f := newTestFacade(t, srv)

		_, err := f.TransactionCapture(ctx, "tx-1", decimal.Zero, "CHF")
		requirePaymentError(t, err, "Failed to capture transaction at SaferPay")
	})

	t.Run("missing transaction id", func(t *testing.T) {
		f := newTestFacade(t, newFakeSaferpay(t))
		_, err := f.TransactionCapture(ctx, "", decimal.Zero, "CHF")
		assert.True(t, errors.Is(err, ErrNoTransaction))
	})
}

func TestTransactionCancelAndRefund(t *testing.T) {
	ctx := context.Background()
	srv := newFakeSaferpay(t)
	srv.on("Transaction/Cancel", ok(map[string]any{"TransactionId": "tx-1", "Date": "2025-06-01T12:00:00.000+02:00"}))
	srv.on("Transaction/Refund", refundOK("refund-1", TransactionAuthorized))
	f := newTestFacade(t, srv)

	c, err := f.TransactionCancel(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", c.TransactionID)

	r, err := f.TransactionRefund(ctx, "cap-1", decimal.RequireFromString("25.50"), "CHF")
	require.NoError(t, err)
	assert.Equal(t, "refund-1", r.TransactionID)
	assert.Equal(t, TransactionAuthorized, r.Status)

	body := srv.recorded()[1].Body
	assert.Equal(t, map[string]any{"Amount": map[string]any{"Value": "2550", "CurrencyCode": "CHF"}}, body["Refund"])
	assert.Equal(t, map[string]any{"CaptureId": "cap-1"}, body["CaptureReference"])

	_, err = f.TransactionRefund(ctx, "cap-1", decimal.Zero, "CHF")
	assert.True(t, errors.Is(err, ErrInvalidPayment))
	_, err = f.TransactionRefund(ctx, "", decimal.NewFromInt(1), "CHF")
	assert.True(t, errors.Is(err, ErrNoTransaction))
	_, err = f.TransactionCancel(ctx, "")
	assert.True(t, errors.Is(err, ErrNoTransaction))
}

func TestRequestIDMismatch(t *testing.T) {
	srv := newFakeSaferpay(t)
	srv.on("PaymentPage/Initialize", ok(map[string]any{
		"ResponseHeader": map[string]any{"RequestId": "someone-else"},
		"Token":          "t",
		"RedirectUrl":    "u",
	}))
	f := newTestFacade(t, srv, fixedIDs("mine"))

	before := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(opInitialize.endpoint, metrics.OutcomeIDMismatch))

	_, err := f.PaymentInitialize(context.Background(), testPayment(), "u", Notification{})
	pe, isPE := AsPaymentError(err)
	require.True(t, isPE)
	assert.Equal(t, "SaferPay response RequestId doesn't match our request", pe.Message)
	assert.Equal(t, "Expected mine, got someone-else", pe.GatewayMessage)

	after := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(opInitialize.endpoint, metrics.OutcomeIDMismatch))
	assert.Equal(t, before+1, after)
}

func TestInvalidJSONResponse(t *testing.T) {
	srv := newFakeSaferpay(t)
	srv.on("PaymentPage/Assert", rawReply(http.StatusOK, "<html>maintenance</html>"))
	f := newTestFacade(t, srv)

	p := testPayment()
	p.TransactionID = "page-token"
	_, err := f.PaymentAssert(context.Background(), p)
	pe, isPE := AsPaymentError(err)
	require.True(t, isPE)
	assert.Equal(t, "Failed to parse the response from SaferPay", pe.Message)
	assert.Equal(t, "Invalid JSON response", pe.GatewayMessage)
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("5xx retried with same request id", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("Transaction/Capture",
			failWith(http.StatusInternalServerError, "INTERNAL_ERROR", "boom"),
			rawReply(http.StatusBadGateway, "Bad Gateway"),
			captureOK("cap-1"),
		)
		f := newTestFacade(t, srv, WithMaxRetries(2))

		before := testutil.ToFloat64(metrics.RetriesTotal.WithLabelValues(opCapture.endpoint))

		res, err := f.TransactionCapture(ctx, "tx-1", decimal.Zero, "CHF")
		require.NoError(t, err)
		assert.Equal(t, "cap-1", res.CaptureID)

		calls := srv.recorded()
		require.Len(t, calls, 3)
		id := calls[0].header()["RequestId"]
		for i, c := range calls {
			assert.Equal(t, id, c.header()["RequestId"], "attempt %d", i)
			assert.Equal(t, float64(i), c.header()["RetryIndicator"], "attempt %d", i)
		}
		assert.Equal(t, before+2, testutil.ToFloat64(metrics.RetriesTotal.WithLabelValues(opCapture.endpoint)))
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("Transaction/Capture", failWith(http.StatusServiceUnavailable, "UNAVAILABLE", "try later"))
		f := newTestFacade(t, srv, WithMaxRetries(1))

		_, err := f.TransactionCapture(ctx, "tx-1", decimal.Zero, "CHF")
		pe, isPE := AsPaymentError(err)
		require.True(t, isPE)
		assert.Equal(t, "Failed to capture transaction at SaferPay", pe.Message)
		assert.Contains(t, pe.GatewayMessage, `ErrorMessage="try later"`)
		assert.Len(t, srv.recorded(), 2)
	})

	t.Run("disabled", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("Transaction/Capture", failWith(http.StatusInternalServerError, "INTERNAL_ERROR", "boom"))
		f := newTestFacade(t, srv, WithMaxRetries(0))

		_, err := f.TransactionCapture(ctx, "tx-1", decimal.Zero, "CHF")
		require.Error(t, err)
		assert.Len(t, srv.recorded(), 1)
	})

	t.Run("each call gets a new request id", func(t *testing.T) {
		srv := newFakeSaferpay(t)
		srv.on("Transaction/Cancel", ok(map[string]any{"TransactionId": "tx"}))
		f := newTestFacade(t, srv)

		for i := 0; i < 3; i++ {
			_, err := f.TransactionCancel(ctx, fmt.Sprintf("tx-%d", i))
			require.NoError(t, err)
		}
		seen := map[any]bool{}
		for _, c := range srv.recorded() {
			seen[c.header()["RequestId"]] = true
		}
		assert.Len(t, seen, 3)
	})
}

func TestTransportError(t *testing.T) {
	srv := newFakeSaferpay(t)
	f := newTestFacade(t, srv, WithMaxRetries(1))
	srv.Close()

	_, err := f.TransactionCancel(context.Background(), "tx-1")
	pe, isPE := AsPaymentError(err)
	require.True(t, isPE)
	assert.Equal(t, "Failed to connect to SaferPay", pe.Message)
	assert.NotEmpty(t, pe.GatewayMessage)
}

func TestCanceledContext(t *testing.T) {
	srv := newFakeSaferpay(t)
	srv.on("Transaction/Cancel", ok(map[string]any{"TransactionId": "tx"}))
	f := newTestFacade(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.TransactionCancel(ctx, "tx-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
