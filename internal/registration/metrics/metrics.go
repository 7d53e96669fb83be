package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration and verification flows.
type Metrics struct {
	// Admission gate decisions by outcome
	AdmissionDecision *prometheus.CounterVec

	// Consent validation failures by missing confirmation
	ConsentFailure *prometheus.CounterVec

	// Verification email deliveries by result ("sent", "deduplicated", "failed")
	VerificationEmail *prometheus.CounterVec

	// Token redemptions by outcome ("verified", "rebound", "expired", "rejected")
	TokenRedemption *prometheus.CounterVec

	// Completed registrations by study
	RegistrationCompleted *prometheus.CounterVec

	// Full registration-commit latency
	CommitLatency prometheus.Histogram
}

// New creates a Metrics instance with all registration metrics registered.
func New() *Metrics {
	return &Metrics{
		AdmissionDecision: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pia_registration_admission_decisions_total",
			Help: "Total admission gate decisions by outcome",
		}, []string{"decision"}), // decision: "missing", "closed", "cap_reached", "ok"

		ConsentFailure: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pia_registration_consent_failures_total",
			Help: "Total consent validation failures by missing confirmation",
		}, []string{"confirmation"}), // confirmation: "tos", "policy"

		VerificationEmail: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pia_registration_verification_emails_total",
			Help: "Total verification email attempts by result",
		}, []string{"result"}),

		TokenRedemption: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pia_registration_token_redemptions_total",
			Help: "Total action token redemptions by outcome",
		}, []string{"outcome"}),

		RegistrationCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pia_registrations_completed_total",
			Help: "Total completed registrations by study",
		}, []string{"study"}),

		CommitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pia_registration_commit_duration_seconds",
			Help:    "Duration of registration commit including account creation",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementAdmission records an admission gate decision.
func (m *Metrics) IncrementAdmission(decision string) {
	if m != nil {
		m.AdmissionDecision.WithLabelValues(decision).Inc()
	}
}

// IncrementConsentFailure records a missing consent confirmation.
func (m *Metrics) IncrementConsentFailure(confirmation string) {
	if m != nil {
		m.ConsentFailure.WithLabelValues(confirmation).Inc()
	}
}

// IncrementVerificationEmail records a verification email attempt result.
func (m *Metrics) IncrementVerificationEmail(result string) {
	if m != nil {
		m.VerificationEmail.WithLabelValues(result).Inc()
	}
}

// IncrementTokenRedemption records an action token redemption outcome.
func (m *Metrics) IncrementTokenRedemption(outcome string) {
	if m != nil {
		m.TokenRedemption.WithLabelValues(outcome).Inc()
	}
}

// IncrementCompleted records a completed registration.
func (m *Metrics) IncrementCompleted(study string) {
	if m != nil {
		m.RegistrationCompleted.WithLabelValues(study).Inc()
	}
}

// ObserveCommitLatency records the duration of a registration commit.
func (m *Metrics) ObserveCommitLatency(d time.Duration) {
	if m != nil {
		m.CommitLatency.Observe(d.Seconds())
	}
}
