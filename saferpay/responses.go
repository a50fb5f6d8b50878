package saferpay

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// errInvalidJSON marks a body that is not a JSON object.
var errInvalidJSON = errors.New("invalid JSON response")

type fields map[string]func(d *jx.Decoder) error

// decodeBody reads the top level object of body. Unknown keys are skipped.
func decodeBody(body []byte, f fields) error {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return errInvalidJSON
	}
	if err := decodeObject(d, f); err != nil {
		return errors.Wrap(errInvalidJSON, err.Error())
	}
	return nil
}

// decodeObject reads a nested object; a value of any other type counts as absent.
func decodeObject(d *jx.Decoder, f fields) error {
	if d.Next() != jx.Object {
		return d.Skip()
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		if fn, ok := f[key]; ok {
			return fn(d)
		}
		return d.Skip()
	})
}

func object(f fields) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		return decodeObject(d, f)
	}
}

func str(dst *string) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		switch d.Next() {
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			*dst = s
			return nil
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return err
			}
			*dst = n.String()
			return nil
		default:
			return d.Skip()
		}
	}
}

// strList accepts both a single string and an array of strings.
func strList(dst *[]string) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		switch d.Next() {
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			*dst = append(*dst, s)
			return nil
		case jx.Array:
			return d.Arr(func(d *jx.Decoder) error {
				var s string
				if err := str(&s)(d); err != nil {
					return err
				}
				if s != "" {
					*dst = append(*dst, s)
				}
				return nil
			})
		default:
			return d.Skip()
		}
	}
}

func responseHeader(requestID *string) func(d *jx.Decoder) error {
	return object(fields{"RequestId": str(requestID)})
}

func errMissingRequestID() error {
	return newPaymentError("Missing RequestId in SaferPay response")
}

// InitializeResponse is a validated PaymentPage/Initialize response.
type InitializeResponse struct {
	RequestID   string
	Token       string
	RedirectURL string
	Expiration  string
}

// ParseInitializeResponse validates that all required fields are present.
func ParseInitializeResponse(body []byte) (*InitializeResponse, error) {
	var r InitializeResponse
	err := decodeBody(body, fields{
		"ResponseHeader": responseHeader(&r.RequestID),
		"Token":          str(&r.Token),
		"RedirectUrl":    str(&r.RedirectURL),
		"Expiration":     str(&r.Expiration),
	})
	if err != nil {
		return nil, err
	}

	if r.RequestID == "" {
		return nil, errMissingRequestID()
	}
	if r.Token == "" || r.RedirectURL == "" {
		return nil, newPaymentError("Invalid response from SaferPay")
	}
	return &r, nil
}

func (r *InitializeResponse) ToMap() map[string]any {
	return map[string]any{
		"request_id":   r.RequestID,
		"token":        r.Token,
		"redirect_url": r.RedirectURL,
	}
}

// AssertResponse is a validated PaymentPage/Assert response.
type AssertResponse struct {
	RequestID         string
	TransactionID     string
	TransactionStatus TransactionStatus
	// CaptureID is only set when the transaction is already captured. Needed for refunds.
	CaptureID string
	OrderID   string
}

func ParseAssertResponse(body []byte) (*AssertResponse, error) {
	var (
		r      AssertResponse
		status string
	)
	err := decodeBody(body, fields{
		"ResponseHeader": responseHeader(&r.RequestID),
		"Transaction": object(fields{
			"Id":        str(&r.TransactionID),
			"Status":    str(&status),
			"CaptureId": str(&r.CaptureID),
			"OrderId":   str(&r.OrderID),
		}),
	})
	if err != nil {
		return nil, err
	}
	r.TransactionStatus = TransactionStatus(status)

	if r.RequestID == "" {
		return nil, errMissingRequestID()
	}
	if r.TransactionID == "" {
		return nil, newPaymentError("Missing Transaction.Id in SaferPay response")
	}
	if r.TransactionStatus == "" {
		return nil, newPaymentError("Missing Transaction.Status in SaferPay response")
	}
	return &r, nil
}

func (r *AssertResponse) ToMap() map[string]any {
	return map[string]any{
		"request_id":         r.RequestID,
		"transaction_id":     r.TransactionID,
		"transaction_status": string(r.TransactionStatus),
		"capture_id":         r.CaptureID,
	}
}

// CaptureResponse is a validated Transaction/Capture response. Status is
// PENDING only for deferred payment methods.
type CaptureResponse struct {
	RequestID string
	CaptureID string
	Status    string
	Date      string
}

func ParseCaptureResponse(body []byte) (*CaptureResponse, error) {
	var r CaptureResponse
	err := decodeBody(body, fields{
		"ResponseHeader": responseHeader(&r.RequestID),
		"CaptureId":      str(&r.CaptureID),
		"Status":         str(&r.Status),
		"Date":           str(&r.Date),
	})
	if err != nil {
		return nil, err
	}
	if r.RequestID == "" {
		return nil, errMissingRequestID()
	}
	return &r, nil
}

func (r *CaptureResponse) ToMap() map[string]any {
	return map[string]any{
		"request_id": r.RequestID,
		"capture_id": r.CaptureID,
		"status":     r.Status,
	}
}

// CancelResponse is a validated Transaction/Cancel response.
type CancelResponse struct {
	RequestID     string
	TransactionID string
	Date          string
}

func ParseCancelResponse(body []byte) (*CancelResponse, error) {
	var r CancelResponse
	err := decodeBody(body, fields{
		"ResponseHeader": responseHeader(&r.RequestID),
		"TransactionId":  str(&r.TransactionID),
		"Date":           str(&r.Date),
	})
	if err != nil {
		return nil, err
	}
	if r.RequestID == "" {
		return nil, errMissingRequestID()
	}
	return &r, nil
}

func (r *CancelResponse) ToMap() map[string]any {
	return map[string]any{
		"request_id":     r.RequestID,
		"transaction_id": r.TransactionID,
	}
}

// RefundResponse is a validated Transaction/Refund response. A refund comes
// back AUTHORIZED and has to be captured like a payment.
type RefundResponse struct {
	RequestID     string
	TransactionID string
	Status        TransactionStatus
	CaptureID     string
}

func ParseRefundResponse(body []byte) (*RefundResponse, error) {
	var (
		r      RefundResponse
		status string
	)
	err := decodeBody(body, fields{
		"ResponseHeader": responseHeader(&r.RequestID),
		"Transaction": object(fields{
			"Id":        str(&r.TransactionID),
			"Status":    str(&status),
			"CaptureId": str(&r.CaptureID),
		}),
	})
	if err != nil {
		return nil, err
	}
	r.Status = TransactionStatus(status)

	if r.RequestID == "" {
		return nil, errMissingRequestID()
	}
	if r.TransactionID == "" {
		return nil, newPaymentError("Missing Transaction.Id in SaferPay response")
	}
	return &r, nil
}

func (r *RefundResponse) ToMap() map[string]any {
	return map[string]any{
		"request_id":     r.RequestID,
		"transaction_id": r.TransactionID,
		"status":         string(r.Status),
		"capture_id":     r.CaptureID,
	}
}

// echoedRequestID extracts ResponseHeader.RequestId without validating anything else.
func echoedRequestID(body []byte) (string, error) {
	var id string
	if err := decodeBody(body, fields{"ResponseHeader": responseHeader(&id)}); err != nil {
		return "", err
	}
	return id, nil
}
