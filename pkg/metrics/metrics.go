package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts records login attempts by result (success|failure|locked).
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bsf_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks sessions that are neither expired nor revoked.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bsf_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// SessionRotations counts token rotations performed during resolution.
	SessionRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bsf_session_rotations_total",
			Help: "Total number of session token rotations",
		},
	)

	// InvitationsIssued counts issued invitations, including resends.
	InvitationsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bsf_invitations_issued_total",
			Help: "Total number of invitations issued",
		},
	)

	// RSVPDecisions counts RSVP outcomes (accepted|declined|full|not_invited).
	RSVPDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bsf_event_rsvp_decisions_total",
			Help: "Total number of RSVP attempts by outcome",
		},
		[]string{"outcome"},
	)

	// EmailsSent counts outbound notification emails by result (sent|failed|disabled).
	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bsf_emails_sent_total",
			Help: "Total number of outbound emails",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bsf_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
