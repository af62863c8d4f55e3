package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/analytics"
	"github.com/aegisshield/security-orchestrator/internal/audit"
	"github.com/aegisshield/security-orchestrator/internal/config"
	"github.com/aegisshield/security-orchestrator/internal/cryptoprov"
	"github.com/aegisshield/security-orchestrator/internal/detection"
	"github.com/aegisshield/security-orchestrator/internal/response"
	"github.com/aegisshield/security-orchestrator/internal/trust"
	"github.com/aegisshield/security-orchestrator/internal/zerotrust"
)

type staticFactors struct{ score float64 }

func (s staticFactors) VerifyCredentials(string, trust.Context) (float64, error) { return s.score, nil }
func (s staticFactors) ScoreDevice(trust.Device) (float64, error)                { return s.score, nil }
func (s staticFactors) ScoreLocation(trust.Location) (float64, error)            { return s.score, nil }
func (s staticFactors) ScoreBehavior(string, map[string]interface{}) (float64, error) {
	return s.score, nil
}

// slowModelSource delays model loading to simulate a slow component start
type slowModelSource struct{ delay time.Duration }

func (s slowModelSource) LoadModels() (detection.Models, error) {
	time.Sleep(s.delay)
	return detection.HeuristicModelSource{}.LoadModels()
}

type brokenPolicySource struct{}

func (brokenPolicySource) LoadPolicies() ([]zerotrust.Policy, error) {
	return nil, errors.New("policy store unreachable")
}

type testDeps struct {
	policySource zerotrust.PolicySource
	modelSource  detection.ModelSource
}

func newTestOrchestrator(t *testing.T, deps testDeps) *Orchestrator {
	t.Helper()
	logger := zap.NewNop()

	if deps.policySource == nil {
		deps.policySource = zerotrust.StaticPolicySource{Policies: zerotrust.DefaultPolicies()}
	}
	if deps.modelSource == nil {
		deps.modelSource = detection.HeuristicModelSource{}
	}

	factors := staticFactors{score: 0.95}
	evaluator := trust.NewEvaluator(factors, factors, factors, factors, trust.EqualWeights(), logger)

	policy := zerotrust.NewEngine(
		config.ZeroTrustConfig{
			ContinuousAuthInterval: 300 * time.Second,
			VerifiedThreshold:      0.75,
			MFAThreshold:           0.90,
		},
		evaluator,
		deps.policySource,
		zerotrust.NewMemoryPermissionStore(),
		logger,
	)
	detector := detection.NewDetector(config.DetectionConfig{AnomalyThreshold: 0.75}, deps.modelSource, logger)
	responder := response.NewEngine(config.ResponseConfig{HistoryLimit: 100}, response.NewPlaybookRegistry(), logger)
	posture := analytics.NewAggregator(config.AnalyticsConfig{BaseScore: 85, RollingWindow: 24 * time.Hour}, logger)
	trail := audit.NewLogger(config.AuditConfig{BufferSize: 64, Retention: 1000}, logger)

	provider, err := cryptoprov.NewAEADProvider(cryptoprov.AlgorithmHybrid, true)
	require.NoError(t, err)

	return New(policy, detector, responder, posture, provider, trail, logger)
}

func TestOrchestratorLifecycle(t *testing.T) {
	t.Run("StartBringsAllComponentsUp", func(t *testing.T) {
		orch := newTestOrchestrator(t, testDeps{})
		require.NoError(t, orch.Start())
		defer orch.Stop()

		assert.True(t, orch.IsRunning())
		assert.True(t, orch.Detector().Enabled())
		assert.True(t, orch.Responder().Running())
		assert.True(t, orch.Analytics().Running())
		assert.Equal(t, zerotrust.StateRunning, orch.PolicyEngine().State())
	})

	t.Run("StartIsIdempotent", func(t *testing.T) {
		orch := newTestOrchestrator(t, testDeps{})
		require.NoError(t, orch.Start())
		defer orch.Stop()
		require.NoError(t, orch.Start())
		assert.True(t, orch.IsRunning())
	})

	t.Run("StopBringsAllComponentsDown", func(t *testing.T) {
		orch := newTestOrchestrator(t, testDeps{})
		require.NoError(t, orch.Start())
		require.NoError(t, orch.Stop())

		assert.False(t, orch.IsRunning())
		assert.False(t, orch.Detector().Enabled())
		assert.False(t, orch.Responder().Running())
		assert.False(t, orch.Analytics().Running())
	})

	t.Run("ImmediateStopWithSlowComponentStart", func(t *testing.T) {
		orch := newTestOrchestrator(t, testDeps{modelSource: slowModelSource{delay: 150 * time.Millisecond}})

		require.NoError(t, orch.Start())
		require.NoError(t, orch.Stop())

		assert.False(t, orch.IsRunning())
		assert.False(t, orch.Detector().Enabled())
		assert.False(t, orch.Responder().Running())
	})

	t.Run("FailedComponentStartRollsBack", func(t *testing.T) {
		orch := newTestOrchestrator(t, testDeps{policySource: brokenPolicySource{}})

		err := orch.Start()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "policy_engine")

		assert.False(t, orch.IsRunning())
		assert.False(t, orch.Detector().Enabled())
		assert.False(t, orch.Responder().Running())
		assert.False(t, orch.Analytics().Running())
	})
}

func TestHandleThreat(t *testing.T) {
	t.Run("DDoSPipelineEndToEnd", func(t *testing.T) {
		orch := newTestOrchestrator(t, testDeps{})
		require.NoError(t, orch.Start())
		defer orch.Stop()

		before := orch.Analytics().ThreatCount()
		event := detection.NewThreatEvent(detection.ThreatDDoSAttack, 0.92, "", time.Now().UTC())

		incident, err := orch.HandleThreat(context.Background(), event)
		require.NoError(t, err)

		assert.Equal(t, detection.SeverityCritical, event.Severity)
		assert.Equal(t, detection.SeverityCritical, incident.Severity)
		assert.Equal(t, response.IncidentResolved, incident.Status)
		assert.Equal(t, []string{
			"Activated DDoS mitigation",
			"Rate limited traffic",
			"Blocked attack sources",
			"Scaled infrastructure",
			"Engaged CDN protection",
		}, incident.ActionsTaken)
		assert.True(t, event.Resolved)
		assert.Equal(t, before+1, orch.Analytics().ThreatCount())
	})

	t.Run("NilEventErrors", func(t *testing.T) {
		orch := newTestOrchestrator(t, testDeps{})
		require.NoError(t, orch.Start())
		defer orch.Stop()

		_, err := orch.HandleThreat(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("StoppedResponderFailsPipeline", func(t *testing.T) {
		orch := newTestOrchestrator(t, testDeps{})
		require.NoError(t, orch.Start())
		defer orch.Stop()
		require.NoError(t, orch.Responder().Stop())

		event := detection.NewThreatEvent(detection.ThreatMalwareDetected, 0.8, "", time.Now().UTC())
		_, err := orch.HandleThreat(context.Background(), event)
		assert.Error(t, err)
		assert.Equal(t, 0, orch.Analytics().ThreatCount())
	})
}

func TestEnforceZeroTrust(t *testing.T) {
	orch := newTestOrchestrator(t, testDeps{})
	require.NoError(t, orch.Start())
	defer orch.Stop()

	snapshot := orch.EnforceZeroTrust()
	assert.Equal(t, 5, snapshot.PoliciesActive)
}

func TestGetDashboard(t *testing.T) {
	t.Run("StoppedOrchestrator", func(t *testing.T) {
		orch := newTestOrchestrator(t, testDeps{})

		dashboard := orch.GetDashboard()
		assert.Equal(t, "stopped", dashboard.Status)
		assert.Zero(t, dashboard.UptimeSeconds)
	})

	t.Run("RunningWithActivity", func(t *testing.T) {
		orch := newTestOrchestrator(t, testDeps{})
		require.NoError(t, orch.Start())
		defer orch.Stop()

		event := detection.NewThreatEvent(detection.ThreatNetworkAnomaly, 0.8, "", time.Now().UTC())
		_, err := orch.HandleThreat(context.Background(), event)
		require.NoError(t, err)

		dashboard := orch.GetDashboard()
		assert.Equal(t, "running", dashboard.Status)
		assert.Equal(t, uint64(1), dashboard.IncidentsResponded)
		assert.Equal(t, 5, dashboard.PoliciesEnforced)
		assert.InDelta(t, 83.0, dashboard.SecurityScore, 1e-9)
		assert.NotEmpty(t, dashboard.ActiveAlerts)

		metrics := orch.GetMetrics()
		assert.Equal(t, dashboard.IncidentsResponded, metrics.IncidentsResponded)
		assert.Equal(t, dashboard.SecurityScore, metrics.SecurityScore)
	})
}
