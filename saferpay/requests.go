package saferpay

import (
	"strconv"

	"github.com/go-faster/jx"
)

// RequestHeader is sent with every Saferpay request. RequestID stays the same
// for all attempts of one logical request; RetryIndicator counts the retries.
type RequestHeader struct {
	SpecVersion    string
	CustomerID     string
	RequestID      string
	RetryIndicator int
}

func (h RequestHeader) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("SpecVersion")
	e.Str(h.SpecVersion)
	e.FieldStart("CustomerId")
	e.Str(h.CustomerID)
	e.FieldStart("RequestId")
	e.Str(h.RequestID)
	e.FieldStart("RetryIndicator")
	e.Int(h.RetryIndicator)
	e.ObjEnd()
}

// Amount in minor units (CHF 1.00 => Value 100).
type Amount struct {
	Value        int64
	CurrencyCode string
}

func (a Amount) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("Value")
	e.Str(strconv.FormatInt(a.Value, 10))
	e.FieldStart("CurrencyCode")
	e.Str(a.CurrencyCode)
	e.ObjEnd()
}

// Notification holds the URLs Saferpay calls (GET) once the payment is final.
type Notification struct {
	SuccessNotifyURL string
	FailNotifyURL    string
}

func (n Notification) empty() bool {
	return n.SuccessNotifyURL == "" && n.FailNotifyURL == ""
}

// request is a body of one Saferpay call; the header is injected per attempt.
type request interface {
	encode(e *jx.Encoder, h RequestHeader)
}

func encodeRequest(r request, h RequestHeader) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	r.encode(e, h)

	out := make([]byte, len(e.Bytes()))
	copy(out, e.Bytes())
	return out
}

type initializeRequest struct {
	TerminalID   string
	Amount       Amount
	OrderID      string
	Description  string
	ReturnURL    string
	Notification Notification
}

func (r initializeRequest) encode(e *jx.Encoder, h RequestHeader) {
	e.ObjStart()
	e.FieldStart("RequestHeader")
	h.encode(e)

	e.FieldStart("TerminalId")
	e.Str(r.TerminalID)

	e.FieldStart("Payment")
	e.ObjStart()
	e.FieldStart("Amount")
	r.Amount.encode(e)
	e.FieldStart("OrderId")
	e.Str(r.OrderID)
	if r.Description != "" {
		e.FieldStart("Description")
		e.Str(r.Description)
	}
	e.ObjEnd()

	e.FieldStart("ReturnUrl")
	e.ObjStart()
	e.FieldStart("Url")
	e.Str(r.ReturnURL)
	e.ObjEnd()

	if !r.Notification.empty() {
		e.FieldStart("Notification")
		e.ObjStart()
		if r.Notification.SuccessNotifyURL != "" {
			e.FieldStart("SuccessNotifyUrl")
			e.Str(r.Notification.SuccessNotifyURL)
		}
		if r.Notification.FailNotifyURL != "" {
			e.FieldStart("FailNotifyUrl")
			e.Str(r.Notification.FailNotifyURL)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

type assertRequest struct {
	Token string
}

func (r assertRequest) encode(e *jx.Encoder, h RequestHeader) {
	e.ObjStart()
	e.FieldStart("RequestHeader")
	h.encode(e)
	e.FieldStart("Token")
	e.Str(r.Token)
	e.ObjEnd()
}

// transactionRequest serves Transaction/Capture and Transaction/Cancel.
type transactionRequest struct {
	TransactionID string
	// Amount is only sent for a partial capture.
	Amount *Amount
}

func (r transactionRequest) encode(e *jx.Encoder, h RequestHeader) {
	e.ObjStart()
	e.FieldStart("RequestHeader")
	h.encode(e)
	e.FieldStart("TransactionReference")
	e.ObjStart()
	e.FieldStart("TransactionId")
	e.Str(r.TransactionID)
	e.ObjEnd()
	if r.Amount != nil {
		e.FieldStart("Amount")
		r.Amount.encode(e)
	}
	e.ObjEnd()
}

type refundRequest struct {
	CaptureID string
	Amount    Amount
}

func (r refundRequest) encode(e *jx.Encoder, h RequestHeader) {
	e.ObjStart()
	e.FieldStart("RequestHeader")
	h.encode(e)
	e.FieldStart("Refund")
	e.ObjStart()
	e.FieldStart("Amount")
	r.Amount.encode(e)
	e.ObjEnd()
	e.FieldStart("CaptureReference")
	e.ObjStart()
	e.FieldStart("CaptureId")
	e.Str(r.CaptureID)
	e.ObjEnd()
	e.ObjEnd()
}
