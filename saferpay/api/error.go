package api

import "fmt"

type RequestError struct {
	StatusCode int
	Err        error
	Body       string
}

func (r *RequestError) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("status: %d err: %v message: %s", r.StatusCode, r.Err, r.Body)
	}
	return fmt.Sprintf("status: %d message: %s", r.StatusCode, r.Body)
}

func (r *RequestError) Unwrap() error {
	return r.Err
}

// Temporary reports whether the request may succeed when repeated.
func (r *RequestError) Temporary() bool {
	return r.StatusCode >= 500
}
