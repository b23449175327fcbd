// Package metrics exposes Prometheus collectors for bid outcomes and HTTP traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Bid outcomes recorded on auction_bids_total.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	bids         *prometheus.CounterVec
	bidDuration  *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_bids_total",
			Help: "Bid submissions by outcome.",
		}, []string{"outcome"}),
		bidDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auction_bid_duration_seconds",
			Help:    "Time to decide a bid, including the wait for the product lock.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.bids, m.bidDuration, m.httpRequests)
	return m
}

// ObserveBid records one decided (or failed) bid.
func (m *Metrics) ObserveBid(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bids.WithLabelValues(outcome).Inc()
	m.bidDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveHTTPRequest records one served request. route is the matched pattern, not the raw path.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
