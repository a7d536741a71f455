package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)

	rec.Booking(OutcomeBooked)
	rec.Booking(OutcomeBooked)
	rec.Booking(OutcomeQuota)
	rec.Cancellation(true)
	rec.NumberingRetry()
	rec.SlotSearch(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.bookings.WithLabelValues(OutcomeBooked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.bookings.WithLabelValues(OutcomeQuota)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cancellations.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.numberingRetries))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.Booking(OutcomeBooked)
		rec.Cancellation(false)
		rec.NumberingRetry()
		rec.SlotSearch(time.Second)
		rec.HTTPRequest(http.MethodGet, "/", 200, time.Second)
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)
	rec.HTTPRequest(http.MethodPost, "/appointments", 201, 5*time.Millisecond)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `http_requests_total{method="POST",route="/appointments",status="201"} 1`)
}
