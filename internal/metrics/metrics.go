package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes.
const (
	OutcomeBooked     = "booked"
	OutcomeQuota      = "quota_exceeded"
	OutcomeNoCapacity = "no_capacity"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

// Recorder owns the scheduling collectors. A nil *Recorder records nothing,
// which keeps unit tests free of registry setup.
type Recorder struct {
	bookings         *prometheus.CounterVec
	cancellations    *prometheus.CounterVec
	numberingRetries prometheus.Counter
	slotSearch       prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		bookings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduling_bookings_total",
				Help: "Booking attempts by outcome",
			},
			[]string{"outcome"},
		),
		cancellations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduling_cancellations_total",
				Help: "Cancelled appointments by billable flag",
			},
			[]string{"paid"},
		),
		numberingRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduling_numbering_retries_total",
				Help: "Consultation number collisions that forced a retry",
			},
		),
		slotSearch: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scheduling_slot_search_duration_seconds",
				Help:    "Duration of slot searches in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		r.bookings,
		r.cancellations,
		r.numberingRetries,
		r.slotSearch,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

func (r *Recorder) Booking(outcome string) {
	if r == nil {
		return
	}
	r.bookings.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Cancellation(paid bool) {
	if r == nil {
		return
	}
	r.cancellations.WithLabelValues(strconv.FormatBool(paid)).Inc()
}

func (r *Recorder) NumberingRetry() {
	if r == nil {
		return
	}
	r.numberingRetries.Inc()
}

func (r *Recorder) SlotSearch(d time.Duration) {
	if r == nil {
		return
	}
	r.slotSearch.Observe(d.Seconds())
}

func (r *Recorder) HTTPRequest(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
