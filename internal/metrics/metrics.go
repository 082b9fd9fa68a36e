// Package metrics defines the Prometheus collectors for the telemetry core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedNodes is the number of nodes currently registered.
	ConnectedNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_connected_nodes",
		Help: "Number of nodes currently connected and registered",
	})

	// IngestMessages counts node messages by message kind.
	IngestMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_ingest_messages_total",
		Help: "Total node messages ingested, by message kind",
	}, []string{"msg"})

	// IngestRejected counts node messages that failed validation or
	// referenced a denied chain.
	IngestRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_ingest_rejected_total",
		Help: "Total node messages rejected, by reason",
	}, []string{"reason"})

	// FeedSubscribers is the number of live dashboard feed connections.
	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_feed_subscribers",
		Help: "Number of connected dashboard feed subscribers",
	})

	// FeedDropped counts feed messages dropped because a subscriber's
	// send buffer was full.
	FeedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_feed_dropped_total",
		Help: "Total feed messages dropped due to slow subscribers",
	})
)
