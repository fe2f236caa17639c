// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the audit service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConversationMetrics tracks the agent core's behavior.
type ConversationMetrics struct {
	// ActiveSessions is the number of live sessions.
	ActiveSessions prometheus.Gauge

	// ExecutionsTotal counts completed executions by outcome
	// (done, error, cancelled).
	ExecutionsTotal *prometheus.CounterVec

	// ToolInvocationsTotal counts tool calls by tool and failure kind
	// (kind "ok" for successes).
	ToolInvocationsTotal *prometheus.CounterVec

	// IterationsPerExecution observes reasoning cycles per execution.
	IterationsPerExecution prometheus.Histogram

	// ExecutionDuration observes wall-clock execution time in seconds.
	ExecutionDuration prometheus.Histogram

	// StreamEventsTotal counts outward stream events by type.
	StreamEventsTotal *prometheus.CounterVec
}

// NewConversationMetrics registers the metric set on a registerer.
func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	factory := promauto.With(reg)

	return &ConversationMetrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "auditor_active_sessions",
			Help: "Number of live conversation sessions.",
		}),
		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_executions_total",
			Help: "Completed agent executions by outcome.",
		}, []string{"outcome"}),
		ToolInvocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_tool_invocations_total",
			Help: "Tool invocations by tool name and failure kind (ok on success).",
		}, []string{"tool", "kind"}),
		IterationsPerExecution: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_iterations_per_execution",
			Help:    "Reasoning cycles per execution.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
		}),
		ExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_execution_duration_seconds",
			Help:    "Wall-clock execution time in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		StreamEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_stream_events_total",
			Help: "Outward stream events by type.",
		}, []string{"type"}),
	}
}

// DefaultMetrics is the process-wide metric set, registered on the
// default Prometheus registry.
var DefaultMetrics = NewConversationMetrics(prometheus.DefaultRegisterer)
