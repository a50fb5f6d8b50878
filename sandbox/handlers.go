package sandbox

import (
	"fmt"
	"html/template"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/alapierre/go-saferpay-client/payment"
	"github.com/alapierre/go-saferpay-client/qr"
	"github.com/alapierre/go-saferpay-client/saferpay"
)

var createForm = template.Must(template.New("create").Parse(`<!DOCTYPE html>
<html><body>
<form method="get" action="/create-payment">
	<input type="number" min="1" step=".01" name="amount" value="10.00" />
	<span>{{.Currency}}</span>
	<input type="submit" value="Create payment" />
</form>
</body></html>
`))

func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("amount")
	if raw == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := createForm.Execute(w, struct{ Currency string }{s.currency}); err != nil {
			logger.WithError(err).Error("render create form")
		}
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !amount.IsPositive() {
		http.Error(w, fmt.Sprintf("invalid amount %q", raw), http.StatusBadRequest)
		return
	}
	if _, err := saferpay.MinorUnits(amount, s.currency); err != nil {
		http.Error(w, fmt.Sprintf("invalid amount %q", raw), http.StatusBadRequest)
		return
	}

	p := payment.New(s.variant, amount, s.currency, fmt.Sprintf("My payment #%d", rand.IntN(99999)+1))
	if err := s.store.Create(r.Context(), p); err != nil {
		s.fail(w, r, err)
		return
	}
	logger.WithField("payment_id", p.ID).WithField("total", amount.String()).Info("payment created")
	http.Redirect(w, r, s.urls.Details(p), http.StatusFound)
}

func (s *Server) paymentByToken(w http.ResponseWriter, r *http.Request) (*payment.Payment, bool) {
	p, err := s.store.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return p, true
}

func (s *Server) paymentDetails(w http.ResponseWriter, r *http.Request) {
	p, ok := s.paymentByToken(w, r)
	if !ok {
		return
	}
	to, err := s.provider.GetForm(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, to, http.StatusFound)
}

func (s *Server) paymentQR(w http.ResponseWriter, r *http.Request) {
	p, ok := s.paymentByToken(w, r)
	if !ok {
		return
	}
	to, err := s.provider.GetForm(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	img, err := qr.PaymentLink(to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}

// processPayment is both the return URL of the payer and the notify URL.
func (s *Server) processPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := s.paymentByToken(w, r)
	if !ok {
		return
	}
	to, err := s.provider.ProcessData(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, to, http.StatusFound)
}

func (s *Server) paymentSuccess(w http.ResponseWriter, r *http.Request) {
	p, ok := s.paymentByToken(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Payment success, total=%s, captured_amount=%s, status=%s, message=%q\n",
		p.Total, p.CapturedAmount, p.Status, p.Message)
}

func (s *Server) paymentFailure(w http.ResponseWriter, r *http.Request) {
	p, ok := s.paymentByToken(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Payment failure, status=%s, message=%q\n", p.Status, p.Message)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			logger.WithError(err).WithField("check", name).Warn("health check failed")
			http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, payment.ErrNotFound):
		status, message = http.StatusNotFound, "payment not found"
	case errors.Is(err, saferpay.ErrInvalidPayment),
		errors.Is(err, saferpay.ErrInvalidState),
		errors.Is(err, saferpay.ErrNoTransaction):
		status, message = http.StatusConflict, err.Error()
	default:
		if pe, ok := saferpay.AsPaymentError(err); ok {
			status, message = http.StatusBadGateway, pe.Message
		}
	}

	log := logger.WithError(err).WithField("path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Info("request rejected")
	}
	http.Error(w, message, status)
}
