package trust

import (
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Default capability implementations. Production deployments swap these
// for real credential stores, fingerprint registries, geo-IP services and
// behavioral models via the Evaluator constructor.

// JWTCredentialVerifier scores the credential factor by validating a
// bearer token carried in the context attributes under "token". A valid
// token whose subject matches the user scores 1.0; anything else scores 0.
type JWTCredentialVerifier struct {
	secret []byte
	issuer string
}

// TokenClaims are the claims expected on orchestrator-issued tokens
type TokenClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTCredentialVerifier creates a verifier for HMAC-signed tokens
func NewJWTCredentialVerifier(secret, issuer string) *JWTCredentialVerifier {
	return &JWTCredentialVerifier{secret: []byte(secret), issuer: issuer}
}

// VerifyCredentials implements CredentialVerifier
func (v *JWTCredentialVerifier) VerifyCredentials(userID string, tc Context) (float64, error) {
	raw, ok := tc.Attributes["token"].(string)
	if !ok || raw == "" {
		return 0, nil
	}

	token, err := jwt.ParseWithClaims(raw, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil || !token.Valid {
		return 0, nil
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || (claims.UserID != userID && claims.Subject != userID) {
		return 0, nil
	}

	return 1.0, nil
}

// StaticCredentialVerifier returns a fixed score for every user. Useful
// when credential checking happens upstream of the orchestrator.
type StaticCredentialVerifier struct {
	Score float64
}

// VerifyCredentials implements CredentialVerifier
func (v StaticCredentialVerifier) VerifyCredentials(string, Context) (float64, error) {
	return v.Score, nil
}

// MemoryDeviceRegistry scores devices against an in-memory registration
// set. Registered devices receive the trusted score; devices presenting
// an unknown fingerprint receive the unknown score.
type MemoryDeviceRegistry struct {
	mu           sync.RWMutex
	registered   map[string]struct{}
	trustedScore float64
	unknownScore float64
}

// NewMemoryDeviceRegistry creates a registry with the given scores
func NewMemoryDeviceRegistry(trustedScore, unknownScore float64) *MemoryDeviceRegistry {
	return &MemoryDeviceRegistry{
		registered:   make(map[string]struct{}),
		trustedScore: trustedScore,
		unknownScore: unknownScore,
	}
}

// Register marks a device id as registered
func (r *MemoryDeviceRegistry) Register(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[deviceID] = struct{}{}
}

// ScoreDevice implements DeviceRegistry
func (r *MemoryDeviceRegistry) ScoreDevice(device Device) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if device.Registered {
		return r.trustedScore, nil
	}
	if _, ok := r.registered[device.ID]; ok {
		return r.trustedScore, nil
	}
	return r.unknownScore, nil
}

// DenylistLocationChecker scores locations against denied countries and
// IPs. Denied origins score 0; anything else scores the allowed score.
type DenylistLocationChecker struct {
	mu              sync.RWMutex
	deniedCountries map[string]struct{}
	deniedIPs       map[string]struct{}
	allowedScore    float64
}

// NewDenylistLocationChecker creates a checker with the given allowed score
func NewDenylistLocationChecker(allowedScore float64) *DenylistLocationChecker {
	return &DenylistLocationChecker{
		deniedCountries: make(map[string]struct{}),
		deniedIPs:       make(map[string]struct{}),
		allowedScore:    allowedScore,
	}
}

// DenyCountry adds a country code to the denylist
func (c *DenylistLocationChecker) DenyCountry(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deniedCountries[code] = struct{}{}
}

// DenyIP adds an IP to the denylist
func (c *DenylistLocationChecker) DenyIP(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deniedIPs[ip] = struct{}{}
}

// ScoreLocation implements LocationChecker
func (c *DenylistLocationChecker) ScoreLocation(location Location) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.deniedCountries[location.Country]; ok {
		return 0, nil
	}
	if _, ok := c.deniedIPs[location.IP]; ok {
		return 0, nil
	}
	return c.allowedScore, nil
}

// BaselineBehaviorModel scores behavior by counting context attributes
// flagged anomalous against a known-attribute baseline. With no signals
// the model reports the baseline score.
type BaselineBehaviorModel struct {
	mu            sync.RWMutex
	baselineScore float64
	anomalyFlags  map[string]struct{}
}

// NewBaselineBehaviorModel creates a model with the given baseline score
func NewBaselineBehaviorModel(baselineScore float64) *BaselineBehaviorModel {
	return &BaselineBehaviorModel{
		baselineScore: baselineScore,
		anomalyFlags:  map[string]struct{}{"impossible_travel": {}, "credential_stuffing": {}, "session_hijack": {}},
	}
}

// ScoreBehavior implements BehaviorModel
func (m *BaselineBehaviorModel) ScoreBehavior(_ string, attributes map[string]interface{}) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	score := m.baselineScore
	for key, value := range attributes {
		if _, flagged := m.anomalyFlags[key]; !flagged {
			continue
		}
		if truthy, ok := value.(bool); ok && truthy {
			score -= 0.3
		}
	}
	if score < 0 {
		score = 0
	}
	return score, nil
}
