// Package sandbox is a small shop used to walk through the Saferpay payment
// page flow by hand.
package sandbox

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-faster/errors"

	"github.com/alapierre/go-saferpay-client/saferpay"
)

type Config struct {
	Env        saferpay.Environment `env:"SAFERPAY_ENV" envDefault:"test"`
	CustomerID string               `env:"SAFERPAY_CUSTOMER_ID,required"`
	TerminalID string               `env:"SAFERPAY_TERMINAL_ID,required"`
	Username   string               `env:"SAFERPAY_USERNAME,required"`
	Password   string               `env:"SAFERPAY_PASSWORD,required"`
	// Capture immediately after a successful authorization.
	Capture     bool          `env:"SAFERPAY_CAPTURE" envDefault:"true"`
	MaxRetries  int           `env:"SAFERPAY_MAX_RETRIES" envDefault:"2"`
	HTTPTimeout time.Duration `env:"SAFERPAY_HTTP_TIMEOUT" envDefault:"15s"`

	// BaseURL is the public address of the sandbox; Saferpay returns the payer there.
	BaseURL    string `env:"SANDBOX_BASE_URL" envDefault:"http://localhost:8000"`
	ListenAddr string `env:"SANDBOX_LISTEN_ADDR" envDefault:":8000"`
	DBPath     string `env:"SANDBOX_DB_PATH" envDefault:"sandbox.db"`
	// RedisURL enables the Redis payment lock, for more than one sandbox instance.
	RedisURL        string `env:"SANDBOX_REDIS_URL"`
	Currency        string `env:"SANDBOX_CURRENCY" envDefault:"EUR"`
	CreateRateLimit int    `env:"SANDBOX_CREATE_RATE_LIMIT" envDefault:"10"`
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	return cfg, nil
}

func (c Config) Credentials() saferpay.Credentials {
	return saferpay.Credentials{
		CustomerID: c.CustomerID,
		TerminalID: c.TerminalID,
		Username:   c.Username,
		Password:   c.Password,
	}
}
