// ABOUTME: Prometheus metrics for calendar synchronization
// ABOUTME: Counts sync runs, applied events, webhook notifications, token refreshes and watch registrations
package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks sync runs by trigger and result
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vesta",
			Subsystem: "calendar",
			Name:      "sync_runs_total",
			Help:      "Total number of calendar sync runs by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	// SyncDuration tracks sync run duration in seconds
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vesta",
			Subsystem: "calendar",
			Name:      "sync_duration_seconds",
			Help:      "Duration of calendar sync runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"trigger"},
	)

	// SyncEventsTotal tracks applied changes by origin and action
	SyncEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vesta",
			Subsystem: "calendar",
			Name:      "sync_events_total",
			Help:      "Calendar changes processed by origin and action",
		},
		[]string{"origin", "action"},
	)

	// FullResyncsTotal tracks fallbacks caused by expired sync tokens
	FullResyncsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vesta",
			Subsystem: "calendar",
			Name:      "full_resyncs_total",
			Help:      "Full resyncs triggered by an expired sync token",
		},
	)

	// WebhookNotificationsTotal tracks push notifications by resource state and outcome
	WebhookNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vesta",
			Subsystem: "calendar",
			Name:      "webhook_notifications_total",
			Help:      "Push notifications received by resource state and outcome",
		},
		[]string{"state", "outcome"},
	)

	// TokenRefreshesTotal tracks OAuth refreshes by result
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vesta",
			Subsystem: "calendar",
			Name:      "token_refreshes_total",
			Help:      "OAuth token refreshes by result",
		},
		[]string{"result"},
	)

	// WatchRegistrationsTotal tracks watch channel registrations by result
	WatchRegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vesta",
			Subsystem: "calendar",
			Name:      "watch_registrations_total",
			Help:      "Watch channel registrations by result",
		},
		[]string{"result"},
	)
)
