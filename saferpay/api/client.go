package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/alapierre/go-saferpay-client/saferpay/util"
	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Version is reported in the User-Agent header of every request.
const Version = "0.3.0"

var logger = logrus.WithField("component", "saferpay.api")

// Response is a raw answer from the Saferpay JSON API.
type Response struct {
	StatusCode int
	Body       []byte
}

type Client interface {
	// Post sends body as JSON to endpoint (relative to the base URL). A non-2xx
	// answer is returned as *RequestError together with the response.
	Post(ctx context.Context, endpoint string, body []byte) (*Response, error)
}

type Credentials struct {
	Username string
	Password string
}

type client struct {
	rest    *resty.Client
	baseURL string
}

// New creates a Client for baseURL. httpClient may be nil.
func New(baseURL string, creds Credentials, httpClient *http.Client) Client {
	var rest *resty.Client
	if httpClient != nil {
		rest = resty.NewWithClient(httpClient)
	} else {
		rest = resty.New()
	}

	rest.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetBasicAuth(creds.Username, creds.Password).
		SetHeader("User-Agent", "go-saferpay-client "+Version).
		SetHeader("Accept", "application/json")

	return &client{rest: rest, baseURL: baseURL}
}

func (c *client) Post(ctx context.Context, endpoint string, body []byte) (*Response, error) {

	r := c.rest.R().SetContext(ctx)
	if util.HttpTraceEnabled() {
		r.EnableTrace()
	}

	resp, err := r.
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetBody(body).
		Post("/" + strings.TrimLeft(endpoint, "/"))

	printTraceInfo(endpoint, c, err, resp)

	if err != nil {
		return nil, errors.Wrapf(err, "POST %s", endpoint)
	}

	res := &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}
	return res, checkError(resp)
}

func checkError(resp *resty.Response) error {
	if !resp.IsError() && resp.StatusCode() < 300 {
		return nil
	}
	return &RequestError{
		StatusCode: resp.StatusCode(),
		Body:       resp.String(),
	}
}

func printTraceInfo(endpoint string, c *client, err error, resp *resty.Response) {

	if !util.HttpTraceEnabled() || resp == nil {
		return
	}

	fields := logrus.Fields{
		"url":         c.baseURL + "/" + strings.TrimLeft(endpoint, "/"),
		"error":       err,
		"status_code": resp.StatusCode(),
		"time":        resp.Time(),
		"received_at": resp.ReceivedAt(),
	}

	if resp.Request != nil {
		ti := resp.Request.TraceInfo()
		fields["dns_lookup"] = ti.DNSLookup
		fields["conn_time"] = ti.ConnTime
		fields["tls_handshake"] = ti.TLSHandshake
		fields["server_time"] = ti.ServerTime
		fields["total_time"] = ti.TotalTime
		fields["conn_reused"] = ti.IsConnReused
		fields["request_attempt"] = ti.RequestAttempt
	}

	logger.WithFields(fields).Debugf("response body: %s", resp.String())
}
