package zerotrust

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/config"
	"github.com/aegisshield/security-orchestrator/internal/trust"
)

type fixedScore struct{ score float64 }

func (s fixedScore) VerifyCredentials(string, trust.Context) (float64, error) { return s.score, nil }
func (s fixedScore) ScoreDevice(trust.Device) (float64, error)                { return s.score, nil }
func (s fixedScore) ScoreLocation(trust.Location) (float64, error)            { return s.score, nil }
func (s fixedScore) ScoreBehavior(string, map[string]interface{}) (float64, error) {
	return s.score, nil
}

type failingSource struct{}

func (failingSource) LoadPolicies() ([]Policy, error) {
	return nil, errors.New("policy store unreachable")
}

func testConfig() config.ZeroTrustConfig {
	return config.ZeroTrustConfig{
		ContinuousAuthInterval: 300 * time.Second,
		VerifiedThreshold:      0.75,
		MFAThreshold:           0.90,
	}
}

// engineWithScore builds a running engine whose four factors all score
// the given value, so the composite trust score equals it exactly.
func engineWithScore(t *testing.T, score float64) *Engine {
	t.Helper()
	s := fixedScore{score}
	evaluator := trust.NewEvaluator(s, s, s, s, trust.EqualWeights(), zap.NewNop())
	engine := NewEngine(
		testConfig(),
		evaluator,
		StaticPolicySource{Policies: DefaultPolicies()},
		NewMemoryPermissionStore(),
		zap.NewNop(),
	)
	require.NoError(t, engine.Start())
	return engine
}

func verificationContext() trust.Context {
	return trust.Context{
		Device:   &trust.Device{ID: "laptop-1", Registered: true},
		Location: &trust.Location{IP: "203.0.113.1", Country: "DE"},
	}
}

func TestEngineLifecycle(t *testing.T) {
	t.Run("StartStopTransitions", func(t *testing.T) {
		engine := NewEngine(testConfig(), nil, StaticPolicySource{Policies: DefaultPolicies()},
			NewMemoryPermissionStore(), zap.NewNop())

		assert.Equal(t, StateStopped, engine.State())
		require.NoError(t, engine.Start())
		assert.Equal(t, StateRunning, engine.State())
		require.NoError(t, engine.Stop())
		assert.Equal(t, StateStopped, engine.State())
	})

	t.Run("StartWhileRunningIsNoOp", func(t *testing.T) {
		engine := engineWithScore(t, 0.8)
		require.NoError(t, engine.Start())
		assert.Equal(t, StateRunning, engine.State())
	})

	t.Run("PolicyLoadFailureIsFatal", func(t *testing.T) {
		engine := NewEngine(testConfig(), nil, failingSource{}, NewMemoryPermissionStore(), zap.NewNop())

		err := engine.Start()
		require.Error(t, err)
		var lifecycleErr *LifecycleError
		require.ErrorAs(t, err, &lifecycleErr)
		assert.Equal(t, StateStopped, engine.State())
	})

	t.Run("VerifyWhileStoppedFails", func(t *testing.T) {
		engine := NewEngine(testConfig(), nil, StaticPolicySource{}, NewMemoryPermissionStore(), zap.NewNop())

		_, err := engine.VerifyIdentity("user-1", verificationContext())
		require.Error(t, err)
	})
}

func TestVerifyIdentity(t *testing.T) {
	boundaries := []struct {
		name        string
		score       float64
		verified    bool
		requiresMFA bool
	}{
		{"JustBelowVerified", 0.74999, false, true},
		{"ExactlyVerified", 0.75, true, true},
		{"JustBelowMFAExempt", 0.8999, true, true},
		{"ExactlyMFAExempt", 0.9, true, false},
	}

	for _, tc := range boundaries {
		t.Run(tc.name, func(t *testing.T) {
			engine := engineWithScore(t, tc.score)

			result, err := engine.VerifyIdentity("user-1", verificationContext())
			require.NoError(t, err)
			assert.Equal(t, tc.verified, result.Verified)
			assert.Equal(t, tc.requiresMFA, result.RequiresMFA)
			assert.InDelta(t, tc.score, result.TrustScore, 1e-9)
		})
	}

	t.Run("UpsertsOneRecordPerUser", func(t *testing.T) {
		engine := engineWithScore(t, 0.8)

		_, err := engine.VerifyIdentity("user-1", verificationContext())
		require.NoError(t, err)
		first, ok := engine.TrustRecordFor("user-1")
		require.True(t, ok)

		_, err = engine.VerifyIdentity("user-1", verificationContext())
		require.NoError(t, err)
		second, ok := engine.TrustRecordFor("user-1")
		require.True(t, ok)

		assert.Equal(t, first.Score, second.Score)
		assert.False(t, second.Timestamp.Before(first.Timestamp))
	})

	t.Run("ScoreIsMeanOfFactors", func(t *testing.T) {
		engine := engineWithScore(t, 0.6)

		result, err := engine.VerifyIdentity("user-1", verificationContext())
		require.NoError(t, err)

		mean := (result.Factors.Credentials + result.Factors.Device +
			result.Factors.Location + result.Factors.Behavior) / 4
		assert.InDelta(t, mean, result.TrustScore, 1e-9)
	})
}

func TestEnforceLeastPrivilege(t *testing.T) {
	store := NewMemoryPermissionStore()
	store.Users["user-1"] = []string{"read", "write"}
	store.Resources["reports"] = []string{"read"}
	store.Users["user-2"] = []string{"delete"}

	engine := NewEngine(testConfig(), nil, StaticPolicySource{}, store, zap.NewNop())

	t.Run("GrantsExactlyTheIntersection", func(t *testing.T) {
		decision, err := engine.EnforceLeastPrivilege("user-1", "reports")
		require.NoError(t, err)
		assert.True(t, decision.AccessGranted)
		assert.Equal(t, []string{"read"}, decision.Permissions)
		assert.Equal(t, "least_privilege", decision.Principle)
	})

	t.Run("EmptyIntersectionDeniesAccess", func(t *testing.T) {
		decision, err := engine.EnforceLeastPrivilege("user-2", "reports")
		require.NoError(t, err)
		assert.False(t, decision.AccessGranted)
		assert.Empty(t, decision.Permissions)
	})
}

func TestContinuousAuthentication(t *testing.T) {
	t.Run("NoPreviousAuth", func(t *testing.T) {
		engine := engineWithScore(t, 0.8)

		check := engine.ContinuousAuthentication("stranger")
		assert.True(t, check.RequiresAuth)
		assert.Equal(t, ReasonNoPreviousAuth, check.Reason)
	})

	t.Run("ExpiredAfterInterval", func(t *testing.T) {
		engine := engineWithScore(t, 0.8)

		base := time.Now()
		engine.now = func() time.Time { return base }
		_, err := engine.VerifyIdentity("user-1", verificationContext())
		require.NoError(t, err)

		engine.now = func() time.Time { return base.Add(301 * time.Second) }
		check := engine.ContinuousAuthentication("user-1")
		assert.True(t, check.RequiresAuth)
		assert.Equal(t, ReasonAuthExpired, check.Reason)
		assert.Equal(t, 301*time.Second, check.TimeSinceAuth)
	})

	t.Run("ExactlyAtIntervalStillValid", func(t *testing.T) {
		engine := engineWithScore(t, 0.8)

		base := time.Now()
		engine.now = func() time.Time { return base }
		_, err := engine.VerifyIdentity("user-1", verificationContext())
		require.NoError(t, err)

		engine.now = func() time.Time { return base.Add(300 * time.Second) }
		check := engine.ContinuousAuthentication("user-1")
		assert.False(t, check.RequiresAuth)
		assert.Equal(t, time.Duration(0), check.TimeUntilReauth)
	})

	t.Run("ReportsRemainingTime", func(t *testing.T) {
		engine := engineWithScore(t, 0.8)

		base := time.Now()
		engine.now = func() time.Time { return base }
		_, err := engine.VerifyIdentity("user-1", verificationContext())
		require.NoError(t, err)

		engine.now = func() time.Time { return base.Add(100 * time.Second) }
		check := engine.ContinuousAuthentication("user-1")
		assert.False(t, check.RequiresAuth)
		assert.Equal(t, 200*time.Second, check.TimeUntilReauth)
	})

	t.Run("CheckDoesNotMutateRecord", func(t *testing.T) {
		engine := engineWithScore(t, 0.8)

		base := time.Now()
		engine.now = func() time.Time { return base }
		_, err := engine.VerifyIdentity("user-1", verificationContext())
		require.NoError(t, err)

		engine.now = func() time.Time { return base.Add(400 * time.Second) }
		_ = engine.ContinuousAuthentication("user-1")

		record, ok := engine.TrustRecordFor("user-1")
		require.True(t, ok)
		assert.Equal(t, base, record.Timestamp)
	})
}

func TestEnforceAllPolicies(t *testing.T) {
	engine := engineWithScore(t, 0.8)

	snapshot := engine.EnforceAllPolicies()
	assert.Equal(t, "enforced", snapshot.Status)
	assert.Equal(t, 5, snapshot.PoliciesActive)
	assert.Equal(t, 5, engine.PolicyCount())
}

func TestApplyMicroSegmentation(t *testing.T) {
	engine := engineWithScore(t, 0.8)

	result := engine.ApplyMicroSegmentation("dmz-1")
	assert.Equal(t, "dmz-1", result.Segment)
	assert.True(t, result.Isolated)
	assert.Empty(t, result.AllowedConnections)
	assert.Equal(t, "deny_all_by_default", result.Policy)
}
