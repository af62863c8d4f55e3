package trust

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCredentials struct{ score float64 }

func (s stubCredentials) VerifyCredentials(string, Context) (float64, error) { return s.score, nil }

type stubDevices struct{ score float64 }

func (s stubDevices) ScoreDevice(Device) (float64, error) { return s.score, nil }

type stubLocations struct{ score float64 }

func (s stubLocations) ScoreLocation(Location) (float64, error) { return s.score, nil }

type stubBehavior struct{ score float64 }

func (s stubBehavior) ScoreBehavior(string, map[string]interface{}) (float64, error) {
	return s.score, nil
}

type failingDevices struct{}

func (failingDevices) ScoreDevice(Device) (float64, error) {
	return 0, assert.AnError
}

func newTestEvaluator(cred, dev, loc, beh float64) *Evaluator {
	return NewEvaluator(
		stubCredentials{cred},
		stubDevices{dev},
		stubLocations{loc},
		stubBehavior{beh},
		EqualWeights(),
		zap.NewNop(),
	)
}

func fullContext() Context {
	return Context{
		Device:    &Device{ID: "laptop-1", Type: "laptop", Registered: true},
		Location:  &Location{IP: "203.0.113.10", Country: "DE"},
		Timestamp: time.Now(),
	}
}

func TestEvaluate(t *testing.T) {
	t.Run("AllFactorsInRange", func(t *testing.T) {
		evaluator := newTestEvaluator(1.0, 0.85, 0.9, 0.8)

		scores, err := evaluator.Evaluate("user-1", fullContext())
		require.NoError(t, err)

		for _, score := range []float64{scores.Credentials, scores.Device, scores.Location, scores.Behavior} {
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})

	t.Run("MissingDeviceScoresZero", func(t *testing.T) {
		evaluator := newTestEvaluator(1.0, 0.85, 0.9, 0.8)

		tc := fullContext()
		tc.Device = nil
		scores, err := evaluator.Evaluate("user-1", tc)
		require.NoError(t, err)
		assert.Equal(t, 0.0, scores.Device)
	})

	t.Run("MissingLocationScoresNeutral", func(t *testing.T) {
		evaluator := newTestEvaluator(1.0, 0.85, 0.9, 0.8)

		tc := fullContext()
		tc.Location = nil
		scores, err := evaluator.Evaluate("user-1", tc)
		require.NoError(t, err)
		assert.Equal(t, 0.5, scores.Location)
	})

	t.Run("ScoresClampedToUnitInterval", func(t *testing.T) {
		evaluator := newTestEvaluator(2.5, -1.0, 0.9, 0.8)

		scores, err := evaluator.Evaluate("user-1", fullContext())
		require.NoError(t, err)
		assert.Equal(t, 1.0, scores.Credentials)
		assert.Equal(t, 0.0, scores.Device)
	})

	t.Run("FailingCapabilityAbortsEvaluation", func(t *testing.T) {
		evaluator := NewEvaluator(
			stubCredentials{1.0},
			failingDevices{},
			stubLocations{0.9},
			stubBehavior{0.8},
			EqualWeights(),
			zap.NewNop(),
		)

		_, err := evaluator.Evaluate("user-1", fullContext())
		require.Error(t, err)

		var capErr *CapabilityUnavailableError
		require.ErrorAs(t, err, &capErr)
		assert.Equal(t, "device", capErr.Capability)
	})

	t.Run("NilCapabilityIsUnavailable", func(t *testing.T) {
		evaluator := NewEvaluator(nil, stubDevices{0.5}, stubLocations{0.5}, stubBehavior{0.5}, EqualWeights(), zap.NewNop())

		_, err := evaluator.Evaluate("user-1", fullContext())
		var capErr *CapabilityUnavailableError
		require.ErrorAs(t, err, &capErr)
	})
}

func TestComposite(t *testing.T) {
	t.Run("EqualWeightsIsArithmeticMean", func(t *testing.T) {
		evaluator := newTestEvaluator(1.0, 0.5, 0.5, 0.0)
		scores := FactorScores{Credentials: 1.0, Device: 0.5, Location: 0.5, Behavior: 0.0}
		assert.InDelta(t, 0.5, evaluator.Composite(scores), 1e-9)
	})

	t.Run("CustomWeightsShiftTheMean", func(t *testing.T) {
		evaluator := NewEvaluator(
			stubCredentials{1.0}, stubDevices{0.5}, stubLocations{0.5}, stubBehavior{0.5},
			Weights{Credentials: 2, Device: 1, Location: 1, Behavior: 0},
			zap.NewNop(),
		)
		scores := FactorScores{Credentials: 1.0, Device: 0.5, Location: 0.5, Behavior: 0.0}
		// (2*1.0 + 0.5 + 0.5) / 4
		assert.InDelta(t, 0.75, evaluator.Composite(scores), 1e-9)
	})

	t.Run("ZeroWeightsFallBackToEqual", func(t *testing.T) {
		evaluator := NewEvaluator(
			stubCredentials{1.0}, stubDevices{1.0}, stubLocations{1.0}, stubBehavior{1.0},
			Weights{}, zap.NewNop(),
		)
		scores := FactorScores{Credentials: 1.0, Device: 0.0, Location: 1.0, Behavior: 0.0}
		assert.InDelta(t, 0.5, evaluator.Composite(scores), 1e-9)
	})
}
