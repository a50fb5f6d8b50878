package saferpay

import (
	"strings"

	"github.com/go-faster/errors"
)

type Environment int

const (
	Test Environment = iota
	Prod
)

func (e Environment) BaseURL() string {
	switch e {
	case Prod:
		return "https://www.saferpay.com/api"
	case Test:
		return "https://test.saferpay.com/api"
	}
	panic("Invalid environment")
}

// PaymentURL is the root of the Payment API (JSON API v1) for the environment.
func (e Environment) PaymentURL() string {
	return e.BaseURL() + "/Payment/v1"
}

func (e Environment) Name() string {
	switch e {
	case Prod:
		return "prod"
	case Test:
		return "test"
	}
	panic("Invalid environment")
}

func (e *Environment) UnmarshalText(text []byte) error {
	val := strings.ToLower(strings.TrimSpace(string(text)))

	switch val {
	case "prod", "production":
		*e = Prod
	case "test", "sandbox":
		*e = Test
	default:
		return errors.Errorf("invalid SAFERPAY_ENV: %q (allowed: prod, test, sandbox)", val)
	}
	return nil
}

func (e Environment) MarshalText() ([]byte, error) {
	return []byte(e.Name()), nil
}
