package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("Test/Observe", OutcomeOK))

	ObserveRequest("Test/Observe", OutcomeOK, 120*time.Millisecond)

	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("Test/Observe", OutcomeOK))
	assert.Equal(t, before+1, after)
}

func TestIncRetryAndStatus(t *testing.T) {
	IncRetry("Test/Retry")
	IncRetry("Test/Retry")
	assert.Equal(t, float64(2), testutil.ToFloat64(RetriesTotal.WithLabelValues("Test/Retry")))

	IncPaymentStatus("test-status")
	assert.Equal(t, float64(1), testutil.ToFloat64(PaymentStatusTotal.WithLabelValues("test-status")))
}
