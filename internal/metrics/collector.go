package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exports orchestrator metrics to prometheus
type Collector struct {
	threatsDetected       *prometheus.CounterVec
	identityVerifications *prometheus.CounterVec
	incidentsResponded    *prometheus.CounterVec
	analysisDuration      prometheus.Histogram
	securityScore         prometheus.Gauge
	policiesEnforced      prometheus.Gauge
	componentUp           *prometheus.GaugeVec
}

// NewCollector registers the orchestrator metrics on the given registerer
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		threatsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_threats_detected_total",
			Help: "Total threats detected, by type and severity",
		}, []string{"type", "severity"}),
		identityVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_identity_verifications_total",
			Help: "Total identity verifications, by outcome",
		}, []string{"outcome"}),
		incidentsResponded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_incidents_responded_total",
			Help: "Total incidents responded to, by status",
		}, []string{"status"}),
		analysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_analysis_duration_seconds",
			Help:    "Duration of traffic analysis calls",
			Buckets: prometheus.DefBuckets,
		}),
		securityScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_security_score",
			Help: "Current overall security score (0-100)",
		}),
		policiesEnforced: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_policies_enforced",
			Help: "Number of enabled zero-trust policies",
		}),
		componentUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orchestrator_component_up",
			Help: "Whether each managed component is running",
		}, []string{"component"}),
	}
}

// ThreatDetected records a detected threat
func (c *Collector) ThreatDetected(threatType, severity string) {
	c.threatsDetected.WithLabelValues(threatType, severity).Inc()
}

// IdentityVerified records a verification outcome
func (c *Collector) IdentityVerified(verified bool) {
	outcome := "verified"
	if !verified {
		outcome = "rejected"
	}
	c.identityVerifications.WithLabelValues(outcome).Inc()
}

// IncidentResponded records a completed response
func (c *Collector) IncidentResponded(status string) {
	c.incidentsResponded.WithLabelValues(status).Inc()
}

// ObserveAnalysisDuration records the duration of an analysis call
func (c *Collector) ObserveAnalysisDuration(seconds float64) {
	c.analysisDuration.Observe(seconds)
}

// SetSecurityScore updates the current security score gauge
func (c *Collector) SetSecurityScore(score float64) {
	c.securityScore.Set(score)
}

// SetPoliciesEnforced updates the enforced policy gauge
func (c *Collector) SetPoliciesEnforced(count int) {
	c.policiesEnforced.Set(float64(count))
}

// SetComponentUp flags a component as running or stopped
func (c *Collector) SetComponentUp(component string, up bool) {
	value := 0.0
	if up {
		value = 1.0
	}
	c.componentUp.WithLabelValues(component).Set(value)
}
