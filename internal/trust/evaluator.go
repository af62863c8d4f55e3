package trust

import (
	"time"

	"go.uber.org/zap"
)

// Context carries the signals for a single identity verification.
// It is constructed per call and never persisted.
type Context struct {
	Device     *Device                `json:"device,omitempty"`
	Location   *Location              `json:"location,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Device describes the requesting device
type Device struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Registered bool   `json:"registered"`
}

// Location describes the request origin
type Location struct {
	IP      string `json:"ip"`
	Country string `json:"country"`
}

// FactorScores holds the per-factor verification outcome, each in [0,1]
type FactorScores struct {
	Credentials float64 `json:"credentials"`
	Device      float64 `json:"device"`
	Location    float64 `json:"location"`
	Behavior    float64 `json:"behavior"`
}

// CredentialVerifier scores the credential factor for a user
type CredentialVerifier interface {
	VerifyCredentials(userID string, tc Context) (float64, error)
}

// DeviceRegistry scores a known device descriptor
type DeviceRegistry interface {
	ScoreDevice(device Device) (float64, error)
}

// LocationChecker scores a known location descriptor
type LocationChecker interface {
	ScoreLocation(location Location) (float64, error)
}

// BehaviorModel scores behavioral signals for a user
type BehaviorModel interface {
	ScoreBehavior(userID string, attributes map[string]interface{}) (float64, error)
}

// Weights assigns a relative weight per verification factor. Zero-value
// weights fall back to equal weighting.
type Weights struct {
	Credentials float64
	Device      float64
	Location    float64
	Behavior    float64
}

// EqualWeights is the default factor weighting
func EqualWeights() Weights {
	return Weights{Credentials: 1, Device: 1, Location: 1, Behavior: 1}
}

func (w Weights) total() float64 {
	return w.Credentials + w.Device + w.Location + w.Behavior
}

// Evaluator computes per-factor trust scores from a verification context.
// Each factor is served by an injected capability so real backends
// (credential stores, device fingerprinting, geo-IP, behavioral biometrics)
// can be substituted without touching callers. Evaluation is a pure
// function of the context plus capability state.
type Evaluator struct {
	credentials CredentialVerifier
	devices     DeviceRegistry
	locations   LocationChecker
	behavior    BehaviorModel
	weights     Weights
	logger      *zap.Logger
}

// NewEvaluator creates a trust evaluator backed by the given capabilities
func NewEvaluator(
	credentials CredentialVerifier,
	devices DeviceRegistry,
	locations LocationChecker,
	behavior BehaviorModel,
	weights Weights,
	logger *zap.Logger,
) *Evaluator {
	if weights.total() == 0 {
		weights = EqualWeights()
	}
	return &Evaluator{
		credentials: credentials,
		devices:     devices,
		locations:   locations,
		behavior:    behavior,
		weights:     weights,
		logger:      logger,
	}
}

// Evaluate scores all four verification factors for the given user and
// context. A missing device yields factor score 0 (zero trust for an
// unknown device); a missing location yields 0.5 (advisory, unknown but
// not penalized). A failing capability aborts the evaluation.
func (e *Evaluator) Evaluate(userID string, tc Context) (FactorScores, error) {
	var scores FactorScores

	if e.credentials == nil || e.devices == nil || e.locations == nil || e.behavior == nil {
		return scores, &CapabilityUnavailableError{Capability: "trust_factor", Err: errNilCapability}
	}

	cred, err := e.credentials.VerifyCredentials(userID, tc)
	if err != nil {
		return scores, &CapabilityUnavailableError{Capability: "credentials", Err: err}
	}
	scores.Credentials = clamp01(cred)

	if tc.Device == nil {
		scores.Device = 0
	} else {
		dev, err := e.devices.ScoreDevice(*tc.Device)
		if err != nil {
			return scores, &CapabilityUnavailableError{Capability: "device", Err: err}
		}
		scores.Device = clamp01(dev)
	}

	if tc.Location == nil {
		scores.Location = 0.5
	} else {
		loc, err := e.locations.ScoreLocation(*tc.Location)
		if err != nil {
			return scores, &CapabilityUnavailableError{Capability: "location", Err: err}
		}
		scores.Location = clamp01(loc)
	}

	beh, err := e.behavior.ScoreBehavior(userID, tc.Attributes)
	if err != nil {
		return scores, &CapabilityUnavailableError{Capability: "behavior", Err: err}
	}
	scores.Behavior = clamp01(beh)

	e.logger.Debug("trust factors evaluated",
		zap.String("user_id", userID),
		zap.Float64("credentials", scores.Credentials),
		zap.Float64("device", scores.Device),
		zap.Float64("location", scores.Location),
		zap.Float64("behavior", scores.Behavior))

	return scores, nil
}

// Composite folds factor scores into a single trust score using the
// configured weights. With equal weights this is the arithmetic mean
// of the four factors.
func (e *Evaluator) Composite(scores FactorScores) float64 {
	total := e.weights.total()
	return (scores.Credentials*e.weights.Credentials +
		scores.Device*e.weights.Device +
		scores.Location*e.weights.Location +
		scores.Behavior*e.weights.Behavior) / total
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
