// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ytstream"

var (
	// CacheOperationsTotal tracks metadata cache lookups and stores.
	// Labels:
	//   - operation: get, set
	//   - status: hit, miss, success
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of metadata cache operations",
		},
		[]string{"operation", "status"},
	)

	// SingleflightRequestsTotal tracks coalescing of concurrent resolves.
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// UpstreamRequestsTotal tracks extraction collaborator calls by outcome.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of extraction collaborator calls",
		},
		[]string{"backend", "result"},
	)

	// StreamsTotal tracks finished downloads by delivery and final state.
	StreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of download streams by outcome",
		},
		[]string{"delivery", "state"},
	)

	// StreamedBytesTotal counts body bytes written to clients.
	StreamedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streamed_bytes_total",
			Help:      "Total number of media bytes written to clients",
		},
		[]string{"delivery"},
	)

	// RateLimitedTotal counts requests rejected by a local limiter.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by local rate limiting",
		},
		[]string{"limiter"},
	)
)

// Cache operation labels.
const (
	CacheOpGet         = "get"
	CacheOpSet         = "set"
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
)

// Singleflight result labels.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// Upstream result labels.
const (
	UpstreamOK          = "ok"
	UpstreamRateLimited = "rate_limited"
	UpstreamError       = "error"
)

// Stream state labels.
const (
	StreamCompleted       = "completed"
	StreamFailedPreStream = "failed_pre_stream"
	StreamFailedMidStream = "failed_mid_stream"
	StreamCanceled        = "canceled"
)

// RegisterCacheEntries exports fn as the metadata cache size gauge on the default
// registry. A second registration keeps the first gauge and returns nil.
func RegisterCacheEntries(fn func() int) error {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Number of metadata cache entries, including expired ones not yet swept",
		},
		func() float64 { return float64(fn()) },
	)

	err := prometheus.Register(gauge)
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return nil
	}
	return err
}
