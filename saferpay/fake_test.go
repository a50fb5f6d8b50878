package saferpay

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alapierre/go-saferpay-client/saferpay/api"
)

const fakePrefix = "/api/Payment/v1/"

type recordedCall struct {
	Endpoint string
	Body     map[string]any
	User     string
	Password string
}

func (c recordedCall) header() map[string]any {
	h, _ := c.Body["RequestHeader"].(map[string]any)
	return h
}

// reply builds a response for one request. A string body is written as is,
// a map gets the echoed ResponseHeader unless it carries its own.
type reply func(call recordedCall) (int, any)

// fakeSaferpay is a minimal Saferpay JSON API echoing RequestHeader.RequestId.
type fakeSaferpay struct {
	*httptest.Server

	mu      sync.Mutex
	calls   []recordedCall
	replies map[string][]reply
}

func newFakeSaferpay(t *testing.T) *fakeSaferpay {
	t.Helper()
	f := &fakeSaferpay{replies: map[string][]reply{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// on queues replies for endpoint; the last one repeats.
func (f *fakeSaferpay) on(endpoint string, r ...reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[endpoint] = append(f.replies[endpoint], r...)
}

func (f *fakeSaferpay) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeSaferpay) endpoints() []string {
	var out []string
	for _, c := range f.recorded() {
		out = append(out, c.Endpoint)
	}
	return out
}

func (f *fakeSaferpay) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	call := recordedCall{Endpoint: strings.TrimPrefix(r.URL.Path, fakePrefix)}
	call.User, call.Password, _ = r.BasicAuth()
	_ = json.Unmarshal(raw, &call.Body)

	f.mu.Lock()
	f.calls = append(f.calls, call)
	queue := f.replies[call.Endpoint]
	var next reply
	if len(queue) > 0 {
		next = queue[0]
		if len(queue) > 1 {
			f.replies[call.Endpoint] = queue[1:]
		}
	}
	f.mu.Unlock()

	if next == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	status, body := next(call)
	if s, isRaw := body.(string); isRaw {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, s)
		return
	}

	m, _ := body.(map[string]any)
	out := map[string]any{}
	for k, v := range m {
		out[k] = v
	}
	if _, ok := out["ResponseHeader"]; !ok {
		out["ResponseHeader"] = map[string]any{"SpecVersion": SpecVersion, "RequestId": call.header()["RequestId"]}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

func ok(body map[string]any) reply {
	return func(recordedCall) (int, any) { return http.StatusOK, body }
}

func failWith(status int, name, message string, detail ...string) reply {
	return func(recordedCall) (int, any) {
		return status, map[string]any{
			"Behavior":     "ABORT",
			"ErrorName":    name,
			"ErrorMessage": message,
			"ErrorDetail":  detail,
		}
	}
}

func rawReply(status int, body string) reply {
	return func(recordedCall) (int, any) { return status, body }
}

func initializeOK(token, redirect string) reply {
	return ok(map[string]any{
		"Token":       token,
		"Expiration":  "2025-06-01T12:00:00.000+02:00",
		"RedirectUrl": redirect,
	})
}

func assertOK(txID string, status TransactionStatus, captureID string) reply {
	tx := map[string]any{"Type": "PAYMENT", "Id": txID, "Status": string(status)}
	if captureID != "" {
		tx["CaptureId"] = captureID
	}
	return ok(map[string]any{"Transaction": tx})
}

func captureOK(captureID string) reply {
	return ok(map[string]any{"CaptureId": captureID, "Status": "CAPTURED", "Date": "2025-06-01T12:00:00.000+02:00"})
}

func refundOK(txID string, status TransactionStatus) reply {
	return ok(map[string]any{"Transaction": map[string]any{"Type": "REFUND", "Id": txID, "Status": string(status)}})
}

var testCredentials = Credentials{
	CustomerID: "123456",
	TerminalID: "17654321",
	Username:   "API_123456_00000001",
	Password:   "secret",
}

func newTestFacade(t *testing.T, srv *fakeSaferpay, opts ...Option) *Facade {
	t.Helper()
	client := api.New(srv.URL+strings.TrimSuffix(fakePrefix, "/"), api.Credentials{
		Username: testCredentials.Username,
		Password: testCredentials.Password,
	}, srv.Client())
	base := []Option{WithAPIClient(client), WithRetryInterval(time.Millisecond, time.Millisecond)}
	return NewFacade(Test, testCredentials, nil, append(base, opts...)...)
}
