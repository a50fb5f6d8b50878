package main

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/alapierre/go-saferpay-client/payment"
	"github.com/alapierre/go-saferpay-client/payment/sqlite"
	"github.com/alapierre/go-saferpay-client/saferpay"
	"github.com/alapierre/go-saferpay-client/saferpay/mutex"
	"github.com/alapierre/go-saferpay-client/saferpay/util"
	"github.com/alapierre/go-saferpay-client/sandbox"
)

type bootstrap struct {
	EnvFile string `env:"SANDBOX_ENV_FILE" envDefault:".env"`
}

func main() {

	boot, err := env.ParseAs[bootstrap]()
	if err != nil {
		logrus.WithError(err).Fatal("invalid bootstrap environment")
	}
	if err := godotenv.Load(boot.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.WithError(err).Fatalf("could not read %s", boot.EnvFile)
	}

	if util.DebugEnabled() {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := sandbox.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Fatal("sandbox stopped")
	}
}

func run(ctx context.Context, cfg sandbox.Config) error {

	store, err := sqlite.Open(cfg.DBPath, sqlite.DefaultConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []sandbox.Option{
		sandbox.WithCurrency(cfg.Currency),
		sandbox.WithCreateRateLimit(cfg.CreateRateLimit),
		sandbox.WithHealthCheck("sqlite", store.Ping),
	}

	var locker mutex.Locker = mutex.NewLocal()
	if cfg.RedisURL != "" {
		redisLocker, err := mutex.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisLocker.Close()
		locker = redisLocker
		opts = append(opts, sandbox.WithHealthCheck("redis", redisLocker.Ping))
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	facade := saferpay.NewFacade(cfg.Env, cfg.Credentials(), httpClient, saferpay.WithMaxRetries(cfg.MaxRetries))

	urls := payment.URLs{BaseURL: cfg.BaseURL}
	provider := saferpay.NewProvider(facade, store, locker, urls, saferpay.WithCapture(cfg.Capture))
	server := sandbox.NewServer(store, provider, saferpay.Variant, urls, opts...)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":        cfg.ListenAddr,
			"base_url":    cfg.BaseURL,
			"env":         facade.Environment().Name(),
			"saferpay":    facade.BaseURL(),
			"customer_id": facade.Credentials().CustomerID,
			"terminal_id": facade.Credentials().TerminalID,
		}).Info("sandbox listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logrus.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
