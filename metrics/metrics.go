// Package metrics holds the Prometheus collectors exported by the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry Metrics
var (
	// ConnectedPeers tracks the number of peers currently eligible for broadcast
	ConnectedPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_peers",
			Help: "Number of peers currently registered for broadcast",
		},
	)

	// BroadcastsTotal counts fan-out passes over the registry
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_broadcasts_total",
			Help: "Total broadcast passes over the registry",
		},
	)

	// ChunksDeliveredTotal counts successful per-peer sends during broadcasts
	ChunksDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_chunks_delivered_total",
			Help: "Total chunks delivered to peers during broadcasts",
		},
	)

	// SendFailuresTotal counts peers pruned because a broadcast send failed
	SendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Total broadcast sends that failed and pruned the peer",
		},
	)
)

// Transport Metrics
var (
	// ChunksReceivedTotal counts chunks read by receive loops
	ChunksReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_chunks_received_total",
			Help: "Total chunks read from peers",
		},
	)

	// AcceptErrorsTotal counts transient accept failures the acceptor survived
	AcceptErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_accept_errors_total",
			Help: "Total accept errors that did not stop the acceptor",
		},
	)
)
