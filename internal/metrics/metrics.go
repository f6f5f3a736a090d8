package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luma_bridge_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "luma_bridge_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	RoutingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luma_bridge_routing_decisions_total",
			Help: "Chat routing decisions by target and reason",
		},
		[]string{"target", "reason"},
	)

	ChatResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luma_bridge_chat_responses_total",
			Help: "Chat responses by serving provider",
		},
		[]string{"provider"},
	)

	BreakerOpens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luma_bridge_breaker_opens_total",
			Help: "Circuit breaker open transitions by backend",
		},
		[]string{"backend"},
	)

	BreakerShortCircuits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luma_bridge_breaker_short_circuits_total",
			Help: "Calls rejected without contacting the backend",
		},
		[]string{"backend"},
	)

	HubConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "luma_bridge_hub_connections",
			Help: "Number of active hub connections",
		},
	)

	HubEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luma_bridge_hub_events_total",
			Help: "Hub events processed by type",
		},
		[]string{"type"},
	)

	ChunksIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "luma_bridge_knowledge_chunks_ingested_total",
			Help: "Total number of knowledge chunks embedded and stored",
		},
	)

	LocalBackendUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "luma_bridge_local_backend_up",
			Help: "Whether the local model runtime is reachable (1) or not (0)",
		},
	)
)
