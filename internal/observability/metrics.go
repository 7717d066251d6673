package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LocationPingsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "blaze", Name: "location_pings_total", Help: "Driver location pings processed"})
	ThrottledWrites    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "blaze", Name: "driver_position_writes_total", Help: "Durable last-known-position writes that passed the throttle"})
	PathFlushesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "blaze", Name: "path_flushes_total", Help: "Path sample batches flushed to durable storage"})
	RidesRequested     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "blaze", Name: "rides_requested_total", Help: "Ride requests received"})
	RidesAssigned      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "blaze", Name: "rides_assigned_total", Help: "Rides created and assigned to a driver"})
	RidesNoCapacity    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "blaze", Name: "rides_no_capacity_total", Help: "Ride requests with no eligible driver in range"})
	DriversOnline      = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "blaze", Name: "drivers_online", Help: "Drivers currently marked online"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "blaze", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "blaze",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
