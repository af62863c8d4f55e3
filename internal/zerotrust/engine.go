package zerotrust

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/config"
	"github.com/aegisshield/security-orchestrator/internal/trust"
)

// State is the lifecycle state of the policy engine
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Re-authentication reasons reported by ContinuousAuthentication
const (
	ReasonNoPreviousAuth = "no_previous_auth"
	ReasonAuthExpired    = "auth_expired"
)

// VerificationResult is the outcome of an identity verification
type VerificationResult struct {
	UserID      string             `json:"user_id"`
	Verified    bool               `json:"verified"`
	TrustScore  float64            `json:"trust_score"`
	Factors     trust.FactorScores `json:"factors"`
	RequiresMFA bool               `json:"requires_mfa"`
}

// AccessDecision is the outcome of a least-privilege check
type AccessDecision struct {
	UserID        string   `json:"user_id"`
	Resource      string   `json:"resource"`
	AccessGranted bool     `json:"access_granted"`
	Permissions   []string `json:"permissions"`
	Principle     string   `json:"principle"`
}

// AuthCheck is the outcome of a continuous-authentication check
type AuthCheck struct {
	RequiresAuth    bool          `json:"requires_auth"`
	Reason          string        `json:"reason,omitempty"`
	TimeSinceAuth   time.Duration `json:"time_since_auth,omitempty"`
	TimeUntilReauth time.Duration `json:"time_until_reauth,omitempty"`
}

// PolicySnapshot is a read-only view of the enforced policy set
type PolicySnapshot struct {
	Status         string    `json:"status"`
	PoliciesActive int       `json:"policies_active"`
	Timestamp      time.Time `json:"timestamp"`
}

// SegmentationResult is the outcome of applying micro-segmentation
type SegmentationResult struct {
	Segment            string   `json:"segment"`
	Isolated           bool     `json:"isolated"`
	AllowedConnections []string `json:"allowed_connections"`
	Policy             string   `json:"policy"`
}

// Engine enforces zero-trust policies: never trust, always verify.
// It owns the per-user trust record cache and the active policy set.
type Engine struct {
	cfg         config.ZeroTrustConfig
	logger      *zap.Logger
	evaluator   *trust.Evaluator
	source      PolicySource
	permissions PermissionStore

	mu       sync.RWMutex
	state    State
	policies map[string]Policy
	records  map[string]TrustRecord

	now func() time.Time
}

// NewEngine creates a policy engine. The evaluator and stores are
// injected so factor scoring and entitlements remain swappable.
func NewEngine(
	cfg config.ZeroTrustConfig,
	evaluator *trust.Evaluator,
	source PolicySource,
	permissions PermissionStore,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:         cfg,
		logger:      logger,
		evaluator:   evaluator,
		source:      source,
		permissions: permissions,
		state:       StateStopped,
		policies:    make(map[string]Policy),
		records:     make(map[string]TrustRecord),
		now:         time.Now,
	}
}

// Start loads the policy set and transitions the engine to running.
// Calling Start while running is a no-op. A policy load failure is
// fatal to startup and leaves the engine stopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateRunning {
		return nil
	}
	e.state = StateStarting
	e.logger.Info("Starting zero-trust policy engine")

	policies, err := e.source.LoadPolicies()
	if err != nil {
		e.state = StateStopped
		return &LifecycleError{Component: "policy_engine", Op: "start", Err: errors.Wrap(err, "failed to load policies")}
	}

	e.policies = make(map[string]Policy, len(policies))
	for _, p := range policies {
		e.policies[p.Name] = p
	}

	e.state = StateRunning
	e.logger.Info("Zero-trust policy engine started", zap.Int("policies", len(e.policies)))
	return nil
}

// Stop transitions the engine to stopped. In-flight verifications
// complete against the state they captured; new work is refused.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateStopped {
		return nil
	}
	e.state = StateStopping
	e.logger.Info("Stopping zero-trust policy engine")
	e.state = StateStopped
	return nil
}

// State reports the current lifecycle state
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// VerifyIdentity evaluates all trust factors for the user and upserts
// the user's trust record. The composite score is the weighted mean of
// the four factor scores, recomputed in full on every call.
func (e *Engine) VerifyIdentity(userID string, tc trust.Context) (*VerificationResult, error) {
	e.mu.RLock()
	state := e.state
	e.mu.RUnlock()
	if state != StateRunning {
		return nil, &LifecycleError{Component: "policy_engine", Op: "verify_identity", Err: errors.Errorf("engine is %s", state)}
	}

	// Factor evaluation happens outside the record lock; injected
	// capabilities may suspend arbitrarily long.
	factors, err := e.evaluator.Evaluate(userID, tc)
	if err != nil {
		return nil, err
	}
	score := e.evaluator.Composite(factors)

	record := TrustRecord{
		UserID: userID,
		Score:  score,
		Factors: Factors{
			Credentials: factors.Credentials,
			Device:      factors.Device,
			Location:    factors.Location,
			Behavior:    factors.Behavior,
		},
		Timestamp: e.now(),
	}

	e.mu.Lock()
	e.records[userID] = record
	e.mu.Unlock()

	result := &VerificationResult{
		UserID:      userID,
		Verified:    score >= e.cfg.VerifiedThreshold,
		TrustScore:  score,
		Factors:     factors,
		RequiresMFA: score < e.cfg.MFAThreshold,
	}

	e.logger.Debug("identity verified",
		zap.String("user_id", userID),
		zap.Float64("trust_score", score),
		zap.Bool("verified", result.Verified),
		zap.Bool("requires_mfa", result.RequiresMFA))

	return result, nil
}

// EnforceLeastPrivilege grants exactly the intersection of the
// resource's required permissions and the user's granted permissions,
// never a superset of what was required.
func (e *Engine) EnforceLeastPrivilege(userID, resource string) (*AccessDecision, error) {
	required, err := e.permissions.RequiredPermissions(resource)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve requirements for %s", resource)
	}
	granted, err := e.permissions.UserPermissions(userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve permissions for %s", userID)
	}

	grantedSet := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		grantedSet[p] = struct{}{}
	}

	intersection := make([]string, 0, len(required))
	for _, p := range required {
		if _, ok := grantedSet[p]; ok {
			intersection = append(intersection, p)
		}
	}

	return &AccessDecision{
		UserID:        userID,
		Resource:      resource,
		AccessGranted: len(intersection) > 0,
		Permissions:   intersection,
		Principle:     "least_privilege",
	}, nil
}

// ContinuousAuthentication checks whether the user must re-authenticate
// based on elapsed time since the last verification. The check never
// mutates the trust record; only VerifyIdentity does. The interval
// comparison is strict: exactly at the interval no re-auth is required.
func (e *Engine) ContinuousAuthentication(userID string) AuthCheck {
	e.mu.RLock()
	record, ok := e.records[userID]
	e.mu.RUnlock()

	if !ok {
		return AuthCheck{RequiresAuth: true, Reason: ReasonNoPreviousAuth}
	}

	elapsed := e.now().Sub(record.Timestamp)
	if elapsed > e.cfg.ContinuousAuthInterval {
		return AuthCheck{
			RequiresAuth:  true,
			Reason:        ReasonAuthExpired,
			TimeSinceAuth: elapsed,
		}
	}

	return AuthCheck{
		RequiresAuth:    false,
		TimeUntilReauth: e.cfg.ContinuousAuthInterval - elapsed,
	}
}

// EnforceAllPolicies returns a snapshot of the enforced policy set.
// Pure read; no policy state is mutated.
func (e *Engine) EnforceAllPolicies() PolicySnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	active := 0
	for _, p := range e.policies {
		if p.Enabled {
			active++
		}
	}

	return PolicySnapshot{
		Status:         "enforced",
		PoliciesActive: active,
		Timestamp:      e.now().UTC(),
	}
}

// PolicyCount reports the number of enabled policies
func (e *Engine) PolicyCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	count := 0
	for _, p := range e.policies {
		if p.Enabled {
			count++
		}
	}
	return count
}

// TrustRecordFor returns the live trust record for a user, if any
func (e *Engine) TrustRecordFor(userID string) (TrustRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	record, ok := e.records[userID]
	return record, ok
}

// ApplyMicroSegmentation isolates a network segment under the
// deny-all-by-default policy
func (e *Engine) ApplyMicroSegmentation(segment string) SegmentationResult {
	e.logger.Debug("applying micro-segmentation", zap.String("segment", segment))
	return SegmentationResult{
		Segment:            segment,
		Isolated:           true,
		AllowedConnections: []string{},
		Policy:             "deny_all_by_default",
	}
}
