package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/analytics"
	"github.com/aegisshield/security-orchestrator/internal/archive"
	"github.com/aegisshield/security-orchestrator/internal/audit"
	"github.com/aegisshield/security-orchestrator/internal/cryptoprov"
	"github.com/aegisshield/security-orchestrator/internal/detection"
	"github.com/aegisshield/security-orchestrator/internal/events"
	"github.com/aegisshield/security-orchestrator/internal/metrics"
	"github.com/aegisshield/security-orchestrator/internal/response"
	"github.com/aegisshield/security-orchestrator/internal/zerotrust"
)

// Dashboard is the aggregate view exposed to operators
type Dashboard struct {
	Status             string            `json:"status"`
	UptimeSeconds      float64           `json:"uptime"`
	ThreatsDetected    uint64            `json:"threats_detected"`
	PoliciesEnforced   int               `json:"policies_enforced"`
	IncidentsResponded uint64            `json:"incidents_responded"`
	SecurityScore      float64           `json:"security_score"`
	ActiveAlerts       []analytics.Alert `json:"active_alerts"`
}

// MetricsSnapshot is the counters view exposed on the metrics endpoint
type MetricsSnapshot struct {
	ThreatsDetected    uint64  `json:"threats_detected"`
	PoliciesEnforced   int     `json:"policies_enforced"`
	IncidentsResponded uint64  `json:"incidents_responded"`
	SecurityScore      float64 `json:"security_score"`
}

type component struct {
	name  string
	start func() error
	stop  func() error
}

// Orchestrator owns the security components, manages their concurrent
// lifecycle and routes detected threats through severity assessment,
// response and analytics recording.
type Orchestrator struct {
	logger    *zap.Logger
	policy    *zerotrust.Engine
	detector  *detection.Detector
	responder *response.Engine
	posture   *analytics.Aggregator
	crypto    cryptoprov.Provider
	trail     *audit.Logger
	publisher events.Publisher
	store     *archive.Store
	collector *metrics.Collector

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// Option configures optional orchestrator collaborators
type Option func(*Orchestrator)

// WithPublisher wires an event publisher
func WithPublisher(publisher events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = publisher }
}

// WithArchive wires the persistence mirror
func WithArchive(store *archive.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithMetrics wires the prometheus collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *Orchestrator) { o.collector = collector }
}

// New creates an orchestrator over the given components
func New(
	policy *zerotrust.Engine,
	detector *detection.Detector,
	responder *response.Engine,
	posture *analytics.Aggregator,
	crypto cryptoprov.Provider,
	trail *audit.Logger,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		logger:    logger,
		policy:    policy,
		detector:  detector,
		responder: responder,
		posture:   posture,
		crypto:    crypto,
		trail:     trail,
		publisher: events.NopPublisher{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) components() []component {
	return []component{
		{name: "policy_engine", start: o.policy.Start, stop: o.policy.Stop},
		{name: "threat_detector", start: o.detector.Start, stop: o.detector.Stop},
		{name: "response_engine", start: o.responder.Start, stop: o.responder.Stop},
		{name: "analytics", start: o.posture.Start, stop: o.posture.Stop},
	}
}

// Start brings up all managed components concurrently. The orchestrator
// is running only once every component reports started; on any failure
// the components that did start are stopped again before the error is
// returned, so no partially-running orchestrator is left behind.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	o.logger.Info("Starting security orchestrator")

	if err := o.trail.Start(); err != nil {
		return errors.Wrap(err, "failed to start audit trail")
	}

	comps := o.components()
	startErrs := make([]error, len(comps))

	var wg sync.WaitGroup
	for i, comp := range comps {
		wg.Add(1)
		go func(i int, comp component) {
			defer wg.Done()
			startErrs[i] = comp.start()
		}(i, comp)
	}
	wg.Wait()

	var failed []string
	for i, err := range startErrs {
		if err != nil {
			failed = append(failed, comps[i].name+": "+err.Error())
			o.logger.Error("component failed to start",
				zap.String("component", comps[i].name), zap.Error(err))
		}
	}

	if len(failed) > 0 {
		// Roll back whatever did come up.
		for i, err := range startErrs {
			if err == nil {
				if stopErr := comps[i].stop(); stopErr != nil {
					o.logger.Error("rollback stop failed",
						zap.String("component", comps[i].name), zap.Error(stopErr))
				}
			}
		}
		_ = o.trail.Stop()
		return errors.Errorf("orchestrator start failed: %s", strings.Join(failed, "; "))
	}

	o.mu.Lock()
	o.running = true
	o.startTime = time.Now()
	o.mu.Unlock()

	o.markComponentsUp(true)
	if o.collector != nil {
		o.collector.SetPoliciesEnforced(o.policy.PolicyCount())
		o.collector.SetSecurityScore(o.posture.CalculateSecurityScore())
	}

	o.logger.Info("Security orchestrator started")
	return nil
}

// Stop shuts down all managed components concurrently and reports
// stopped once every component confirms. Safe to call at any time,
// including while analyses and verifications are in flight.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	wasRunning := o.running
	o.running = false
	o.mu.Unlock()

	o.logger.Info("Stopping security orchestrator")

	comps := o.components()
	stopErrs := make([]error, len(comps))

	var wg sync.WaitGroup
	for i, comp := range comps {
		wg.Add(1)
		go func(i int, comp component) {
			defer wg.Done()
			stopErrs[i] = comp.stop()
		}(i, comp)
	}
	wg.Wait()

	if err := o.trail.Stop(); err != nil {
		o.logger.Error("failed to stop audit trail", zap.Error(err))
	}
	if err := o.publisher.Close(); err != nil {
		o.logger.Error("failed to close event publisher", zap.Error(err))
	}

	o.markComponentsUp(false)

	var failed []string
	for i, err := range stopErrs {
		if err != nil {
			failed = append(failed, comps[i].name+": "+err.Error())
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("orchestrator stop incomplete: %s", strings.Join(failed, "; "))
	}

	if wasRunning {
		o.logger.Info("Security orchestrator stopped")
	}
	return nil
}

// IsRunning reports whether the orchestrator is running
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// HandleThreat is the single authoritative pipeline from a detected
// threat to a recorded remediation: assess severity, respond with the
// matching playbook, record the outcome for posture scoring.
func (o *Orchestrator) HandleThreat(ctx context.Context, event *detection.ThreatEvent) (*response.Incident, error) {
	if event == nil {
		return nil, errors.New("nil threat event")
	}

	severity := o.posture.AssessThreatSeverity(event.Score)
	event.Severity = severity

	o.logger.Warn("handling threat",
		zap.String("type", string(event.Type)),
		zap.Float64("score", event.Score),
		zap.String("severity", string(severity)))

	incident, err := o.responder.Respond(event, severity)
	if err != nil {
		return nil, errors.Wrap(err, "response failed")
	}

	o.posture.RecordThreat(event, incident)

	if o.collector != nil {
		o.collector.ThreatDetected(string(event.Type), string(severity))
		o.collector.IncidentResponded(string(incident.Status))
		o.collector.SetSecurityScore(o.posture.CalculateSecurityScore())
	}

	o.trail.LogEvent("threat_response", "orchestrator", string(event.Type), map[string]interface{}{
		"incident_id": incident.ID,
		"severity":    string(severity),
		"score":       event.Score,
	})

	// Best-effort fan-out; delivery never gates the pipeline.
	if err := o.publisher.PublishThreat(ctx, event); err != nil {
		o.logger.Debug("threat publish failed", zap.Error(err))
	}
	if err := o.publisher.PublishIncident(ctx, incident); err != nil {
		o.logger.Debug("incident publish failed", zap.Error(err))
	}
	if o.store != nil {
		if err := o.store.SaveThreat(event); err != nil {
			o.logger.Warn("threat archive failed", zap.Error(err))
		}
		if err := o.store.SaveIncident(incident); err != nil {
			o.logger.Warn("incident archive failed", zap.Error(err))
		}
	}

	return incident, nil
}

// StartThreatDetection enables the threat detector on demand
func (o *Orchestrator) StartThreatDetection() error {
	return o.detector.Enable()
}

// EnforceZeroTrust returns the enforced policy snapshot
func (o *Orchestrator) EnforceZeroTrust() zerotrust.PolicySnapshot {
	snapshot := o.policy.EnforceAllPolicies()
	o.trail.LogEvent("policy_enforcement", "orchestrator", "all", map[string]interface{}{
		"policies_active": snapshot.PoliciesActive,
	})
	return snapshot
}

// GetDashboard aggregates the dashboard view across all components.
// Pure read projection over owned component state.
func (o *Orchestrator) GetDashboard() Dashboard {
	o.mu.RLock()
	running := o.running
	startTime := o.startTime
	o.mu.RUnlock()

	status := "stopped"
	uptime := 0.0
	if running {
		status = "running"
		uptime = time.Since(startTime).Seconds()
	}

	return Dashboard{
		Status:             status,
		UptimeSeconds:      uptime,
		ThreatsDetected:    o.detector.ThreatCount(),
		PoliciesEnforced:   o.policy.PolicyCount(),
		IncidentsResponded: o.responder.IncidentCount(),
		SecurityScore:      o.posture.CalculateSecurityScore(),
		ActiveAlerts:       o.posture.ActiveAlerts(),
	}
}

// GetSecurityPosture projects the current security posture
func (o *Orchestrator) GetSecurityPosture() analytics.Posture {
	return o.posture.SecurityPosture()
}

// GetMetrics returns the counter snapshot for the metrics endpoint
func (o *Orchestrator) GetMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		ThreatsDetected:    o.detector.ThreatCount(),
		PoliciesEnforced:   o.policy.PolicyCount(),
		IncidentsResponded: o.responder.IncidentCount(),
		SecurityScore:      o.posture.CalculateSecurityScore(),
	}
}

// PolicyEngine exposes the policy engine to the request layer
func (o *Orchestrator) PolicyEngine() *zerotrust.Engine { return o.policy }

// Detector exposes the threat detector to the request layer
func (o *Orchestrator) Detector() *detection.Detector { return o.detector }

// Responder exposes the response engine to the request layer
func (o *Orchestrator) Responder() *response.Engine { return o.responder }

// Analytics exposes the posture aggregator to the request layer
func (o *Orchestrator) Analytics() *analytics.Aggregator { return o.posture }

// Crypto exposes the crypto provider to the request layer
func (o *Orchestrator) Crypto() cryptoprov.Provider { return o.crypto }

// AuditTrail exposes the audit logger to the request layer
func (o *Orchestrator) AuditTrail() *audit.Logger { return o.trail }

func (o *Orchestrator) markComponentsUp(up bool) {
	if o.collector == nil {
		return
	}
	for _, comp := range o.components() {
		o.collector.SetComponentUp(comp.name, up)
	}
}
