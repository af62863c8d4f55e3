package detection

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/config"
)

type failingModelSource struct{}

func (failingModelSource) LoadModels() (Models, error) {
	return Models{}, errors.New("model registry unreachable")
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	detector := NewDetector(
		config.DetectionConfig{AnomalyThreshold: 0.75, ThreatThreshold: 0.85},
		HeuristicModelSource{},
		zap.NewNop(),
	)
	require.NoError(t, detector.Start())
	return detector
}

func sampleWithScore(score float64) map[string]interface{} {
	return map[string]interface{}{"anomaly_score": score}
}

func TestDetectorLifecycle(t *testing.T) {
	t.Run("StartStop", func(t *testing.T) {
		detector := NewDetector(config.DetectionConfig{AnomalyThreshold: 0.75}, HeuristicModelSource{}, zap.NewNop())

		assert.False(t, detector.Enabled())
		require.NoError(t, detector.Start())
		assert.True(t, detector.Enabled())
		require.NoError(t, detector.Stop())
		assert.False(t, detector.Enabled())
	})

	t.Run("ModelLoadFailureIsFatal", func(t *testing.T) {
		detector := NewDetector(config.DetectionConfig{AnomalyThreshold: 0.75}, failingModelSource{}, zap.NewNop())

		require.Error(t, detector.Start())
		assert.False(t, detector.Enabled())
	})

	t.Run("EnableAfterStop", func(t *testing.T) {
		detector := newTestDetector(t)
		require.NoError(t, detector.Stop())
		require.NoError(t, detector.Enable())
		assert.True(t, detector.Enabled())
	})
}

func TestAnalyzeNetworkTraffic(t *testing.T) {
	t.Run("DisabledReturnsInertResult", func(t *testing.T) {
		detector := NewDetector(config.DetectionConfig{AnomalyThreshold: 0.75}, HeuristicModelSource{}, zap.NewNop())

		analysis, err := detector.AnalyzeNetworkTraffic(sampleWithScore(0.99))
		require.NoError(t, err)
		assert.Equal(t, StatusDisabled, analysis.Status)
		assert.Nil(t, analysis.Event)
		assert.Equal(t, uint64(0), detector.ThreatCount())
	})

	t.Run("ScoreAtThresholdIsNormal", func(t *testing.T) {
		detector := newTestDetector(t)

		analysis, err := detector.AnalyzeNetworkTraffic(sampleWithScore(0.75))
		require.NoError(t, err)
		assert.Equal(t, StatusNormal, analysis.Status)
		assert.Equal(t, uint64(0), detector.ThreatCount())
	})

	t.Run("ScoreAboveThresholdIsMediumThreat", func(t *testing.T) {
		detector := newTestDetector(t)

		analysis, err := detector.AnalyzeNetworkTraffic(sampleWithScore(0.76))
		require.NoError(t, err)
		assert.Equal(t, StatusThreatDetected, analysis.Status)
		require.NotNil(t, analysis.Event)
		assert.Equal(t, ThreatNetworkAnomaly, analysis.Event.Type)
		assert.Equal(t, SeverityMedium, analysis.Event.Severity)
		assert.Equal(t, uint64(1), detector.ThreatCount())
	})

	t.Run("ScoreAboveNinetyIsHighThreat", func(t *testing.T) {
		detector := newTestDetector(t)

		analysis, err := detector.AnalyzeNetworkTraffic(sampleWithScore(0.95))
		require.NoError(t, err)
		require.NotNil(t, analysis.Event)
		assert.Equal(t, SeverityHigh, analysis.Event.Severity)
	})

	t.Run("CounterAccumulates", func(t *testing.T) {
		detector := newTestDetector(t)

		for i := 0; i < 3; i++ {
			_, err := detector.AnalyzeNetworkTraffic(sampleWithScore(0.8))
			require.NoError(t, err)
		}
		assert.Equal(t, uint64(3), detector.ThreatCount())
	})

	t.Run("HeuristicFlagsRaiseScore", func(t *testing.T) {
		detector := newTestDetector(t)

		analysis, err := detector.AnalyzeNetworkTraffic(map[string]interface{}{
			"syn_flood":          true,
			"known_bad_ip":       true,
			"packets_per_second": 50000.0,
		})
		require.NoError(t, err)
		assert.Equal(t, StatusThreatDetected, analysis.Status)
		assert.Less(t, analysis.Score, 1.0)
	})
}

func TestDetectAnomalies(t *testing.T) {
	t.Run("DisabledReturnsEmpty", func(t *testing.T) {
		detector := NewDetector(config.DetectionConfig{AnomalyThreshold: 0.75}, HeuristicModelSource{}, zap.NewNop())

		anomalies, err := detector.DetectAnomalies(map[string]interface{}{"syn_flood": true})
		require.NoError(t, err)
		assert.Empty(t, anomalies)
	})

	t.Run("CleanSampleYieldsNoFindings", func(t *testing.T) {
		detector := newTestDetector(t)

		anomalies, err := detector.DetectAnomalies(map[string]interface{}{
			"bytes_in": 1024.0, "protocol": "https",
		})
		require.NoError(t, err)
		assert.Empty(t, anomalies)
	})

	t.Run("AnomalousSignalsAreReported", func(t *testing.T) {
		detector := newTestDetector(t)

		anomalies, err := detector.DetectAnomalies(map[string]interface{}{
			"anomaly_score": 0.95,
		})
		require.NoError(t, err)
		require.Len(t, anomalies, 1)
		assert.Equal(t, "anomaly_score", anomalies[0].Source)
		assert.InDelta(t, 0.95, anomalies[0].Score, 1e-9)
	})
}

func TestIdentifyThreats(t *testing.T) {
	t.Run("AnomalousSignalBecomesTypedEvent", func(t *testing.T) {
		detector := newTestDetector(t)

		threats, err := detector.IdentifyThreats(sampleWithScore(0.95))
		require.NoError(t, err)
		require.Len(t, threats, 1)
		assert.NotEmpty(t, threats[0].ID)
		assert.Equal(t, ThreatNetworkAnomaly, threats[0].Type)
		assert.Equal(t, SeverityHigh, threats[0].Severity)
		assert.Equal(t, uint64(1), detector.ThreatCount())
	})

	t.Run("QuietSampleYieldsNoEvents", func(t *testing.T) {
		detector := newTestDetector(t)

		threats, err := detector.IdentifyThreats(map[string]interface{}{
			"syn_flood": true, "known_bad_ip": true,
		})
		require.NoError(t, err)
		assert.Empty(t, threats)
		assert.Equal(t, uint64(0), detector.ThreatCount())
	})
}

func TestAnalyzeUserBehavior(t *testing.T) {
	t.Run("NormalActivity", func(t *testing.T) {
		detector := newTestDetector(t)

		result, err := detector.AnalyzeUserBehavior("user-1", map[string]interface{}{
			"logins_per_hour": 3.0,
		})
		require.NoError(t, err)
		assert.Equal(t, "user-1", result.UserID)
		assert.Equal(t, RecommendationNormal, result.Recommendation)
		assert.Empty(t, result.Anomalies)
	})

	t.Run("DeviatingActivityFlagsReview", func(t *testing.T) {
		detector := newTestDetector(t)

		result, err := detector.AnalyzeUserBehavior("user-1", map[string]interface{}{
			"logins_per_hour":    40.0,
			"data_downloaded_mb": 5000.0,
			"off_hours":          true,
		})
		require.NoError(t, err)
		assert.Greater(t, result.RiskScore, 0.75)
		assert.Contains(t, []string{RecommendationReview, RecommendationBlock}, result.Recommendation)
		assert.NotEmpty(t, result.Anomalies)
	})
}

func TestDetectAPT(t *testing.T) {
	t.Run("SingleStageIsNoise", func(t *testing.T) {
		detector := newTestDetector(t)

		result, err := detector.DetectAPT(map[string]interface{}{"persistence": true})
		require.NoError(t, err)
		assert.False(t, result.Detected)
		assert.InDelta(t, 0.25, result.Confidence, 1e-9)
	})

	t.Run("CorrelatedStagesDetectCampaign", func(t *testing.T) {
		detector := newTestDetector(t)

		result, err := detector.DetectAPT(map[string]interface{}{
			"lateral_movement":    true,
			"persistence":         true,
			"command_and_control": true,
		})
		require.NoError(t, err)
		assert.True(t, result.Detected)
		assert.InDelta(t, 0.75, result.Confidence, 1e-9)
		assert.Len(t, result.Indicators, 3)
	})

	t.Run("DisabledReturnsInert", func(t *testing.T) {
		detector := NewDetector(config.DetectionConfig{AnomalyThreshold: 0.75}, HeuristicModelSource{}, zap.NewNop())

		result, err := detector.DetectAPT(map[string]interface{}{"persistence": true})
		require.NoError(t, err)
		assert.False(t, result.Detected)
	})
}
