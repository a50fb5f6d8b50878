package sandbox

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/alapierre/go-saferpay-client/payment"
)

var logger = logrus.WithField("component", "sandbox")

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	store       payment.Store
	provider    payment.Provider
	urls        payment.URLs
	variant     string
	currency    string
	createLimit int
	checks      map[string]HealthCheck
}

type Option func(*Server)

func WithCurrency(currency string) Option {
	return func(s *Server) { s.currency = currency }
}

// WithCreateRateLimit limits payment creation per client IP and minute.
func WithCreateRateLimit(n int) Option {
	return func(s *Server) { s.createLimit = n }
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

func NewServer(store payment.Store, provider payment.Provider, variant string, urls payment.URLs, opts ...Option) *Server {
	s := &Server{
		store:       store,
		provider:    provider,
		urls:        urls,
		variant:     variant,
		currency:    "EUR",
		createLimit: 10,
		checks:      map[string]HealthCheck{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the sandbox HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.With(httprate.Limit(s.createLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Get("/create-payment", s.createPayment)

	r.Get("/payment-details/{token}", s.paymentDetails)
	r.Get("/payment-qr/{token}", s.paymentQR)
	r.Get("/payment-success/{token}", s.paymentSuccess)
	r.Get("/payment-failure/{token}", s.paymentFailure)

	r.Get("/payments/process/{token}", s.processPayment)
	r.Post("/payments/process/{token}", s.processPayment)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.healthz)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			logger.WithFields(logrus.Fields{
				"req_id":   middleware.GetReqID(r.Context()),
				"method":   r.Method,
				"uri":      r.RequestURI,
				"status":   ww.Status(),
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start),
			}).Info("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}
