// Package qr renders payment page links as QR codes so a payer can finish
// the payment on a phone.
package qr

import (
	"net/url"

	"github.com/go-faster/errors"
	"github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 300

// PNG encodes content with medium error correction.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}

// PaymentLink encodes an absolute http(s) payment page URL.
func PaymentLink(link string) ([]byte, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, errors.Wrap(err, "parse payment link")
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, errors.Errorf("payment link must be an absolute http(s) URL: %q", link)
	}
	return PNG(u.String(), DefaultSize)
}
