package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "progeval", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "progeval", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	GuardTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "progeval", Name: "guard_timeouts_total", Help: "Guarded store operations that exceeded their deadline."},
		[]string{"op"},
	)
	GuardRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "progeval", Name: "guard_retries_total", Help: "Guarded store operations retried after a connection error."},
		[]string{"op"},
	)
	BroadcastPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "progeval", Name: "broadcast_published_total", Help: "Realtime events published by backend."},
		[]string{"backend"},
	)
	BroadcastFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "progeval", Name: "broadcast_failed_total", Help: "Realtime publishes that failed and were dropped."},
		[]string{"backend"},
	)
	ResponsesSaved = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "progeval", Name: "responses_saved_total", Help: "Successful full-replace saves of evaluation responses."},
	)
	LiveViewers = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "progeval", Name: "live_viewers", Help: "Open websocket subscriptions to evaluation channels."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(GuardTimeouts)
	reg.MustRegister(GuardRetries)
	reg.MustRegister(BroadcastPublished)
	reg.MustRegister(BroadcastFailed)
	reg.MustRegister(ResponsesSaved)
	reg.MustRegister(LiveViewers)
}
