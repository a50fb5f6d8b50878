package saferpay

import (
	"fmt"
	"strings"

	"github.com/alapierre/go-saferpay-client/saferpay/api"
)

const (
	unknownErrorName    = "Unknown error name"
	unknownErrorMessage = "Unknown error message"
	unknownErrorDetail  = "Unknown error detail"
)

// ErrorResponse is the body Saferpay returns with HTTP status >= 400.
type ErrorResponse struct {
	Name     string
	Message  string
	Detail   string
	Behavior string
	// Code is the HTTP status, 0 when no response was received.
	Code int
}

// NewErrorResponse returns an ErrorResponse filled with the defaults.
func NewErrorResponse() ErrorResponse {
	return ErrorResponse{
		Name:    unknownErrorName,
		Message: unknownErrorMessage,
		Detail:  unknownErrorDetail,
	}
}

// ErrorResponseFrom decodes the error body of res. Missing fields keep their defaults.
func ErrorResponseFrom(res *api.Response) ErrorResponse {
	e := NewErrorResponse()
	if res == nil {
		e.Message = "No response received from SaferPay"
		return e
	}
	e.Code = res.StatusCode

	var (
		name, message, behavior string
		details                 []string
	)
	err := decodeBody(res.Body, fields{
		"ErrorName":    str(&name),
		"ErrorMessage": str(&message),
		"ErrorDetail":  strList(&details),
		"Behavior":     str(&behavior),
	})
	if err != nil {
		e.Message = "Failed to parse the response from SaferPay"
		return e
	}

	logger.Errorf("SaferPay error response: %s", string(res.Body))

	if name != "" {
		e.Name = name
	}
	if message != "" {
		e.Message = message
	}
	if len(details) > 0 {
		e.Detail = strings.Join(details, "; ")
	}
	e.Behavior = behavior
	return e
}

func (e ErrorResponse) String() string {
	return fmt.Sprintf("%s: %s (%s)", e.Name, e.Message, e.Detail)
}

func (e ErrorResponse) ToMap() map[string]any {
	return map[string]any{
		"name":    e.Name,
		"message": e.Message,
		"detail":  e.Detail,
		"code":    e.Code,
	}
}
