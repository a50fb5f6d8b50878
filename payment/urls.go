package payment

import (
	"net/url"
	"strings"
)

// URLs builds the shop URLs a payment is redirected to.
type URLs struct {
	BaseURL string
}

// Process is where the gateway sends the payer back and posts notifications.
func (u URLs) Process(p *Payment) string {
	return u.join("payments", "process", p.Token)
}

func (u URLs) Success(p *Payment) string {
	return u.join("payment-success", p.Token)
}

func (u URLs) Failure(p *Payment) string {
	return u.join("payment-failure", p.Token)
}

func (u URLs) Details(p *Payment) string {
	return u.join("payment-details", p.Token)
}

func (u URLs) join(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.TrimRight(u.BaseURL, "/") + "/" + strings.Join(escaped, "/")
}
