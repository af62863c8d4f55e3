package zerotrust

import "time"

// PolicyCategory classifies a zero-trust policy
type PolicyCategory string

const (
	CategoryAuthentication PolicyCategory = "authentication"
	CategoryAuthorization  PolicyCategory = "authorization"
	CategoryNetwork        PolicyCategory = "network"
	CategoryDevice         PolicyCategory = "device"
)

// Policy is a single zero-trust policy. Policies form a flat set keyed
// by name; each is evaluated independently of the others.
type Policy struct {
	Name     string         `json:"name"`
	Category PolicyCategory `json:"category"`
	Enabled  bool           `json:"enabled"`
}

// PolicySource loads the active policy set at engine startup
type PolicySource interface {
	LoadPolicies() ([]Policy, error)
}

// PermissionStore resolves granted and required permission sets.
// Real deployments back this with an IAM or entitlement service.
type PermissionStore interface {
	UserPermissions(userID string) ([]string, error)
	RequiredPermissions(resource string) ([]string, error)
}

// StaticPolicySource serves a fixed policy set
type StaticPolicySource struct {
	Policies []Policy
}

// LoadPolicies implements PolicySource
func (s StaticPolicySource) LoadPolicies() ([]Policy, error) {
	return s.Policies, nil
}

// DefaultPolicies is the built-in zero-trust policy set
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: "continuous_authentication", Category: CategoryAuthentication, Enabled: true},
		{Name: "least_privilege_access", Category: CategoryAuthorization, Enabled: true},
		{Name: "micro_segmentation", Category: CategoryNetwork, Enabled: true},
		{Name: "device_trust_verification", Category: CategoryDevice, Enabled: true},
		{Name: "context_aware_access", Category: CategoryAuthorization, Enabled: true},
	}
}

// MemoryPermissionStore is an in-memory PermissionStore
type MemoryPermissionStore struct {
	Users     map[string][]string
	Resources map[string][]string
}

// NewMemoryPermissionStore creates an empty permission store
func NewMemoryPermissionStore() *MemoryPermissionStore {
	return &MemoryPermissionStore{
		Users:     make(map[string][]string),
		Resources: make(map[string][]string),
	}
}

// UserPermissions implements PermissionStore
func (s *MemoryPermissionStore) UserPermissions(userID string) ([]string, error) {
	if perms, ok := s.Users[userID]; ok {
		return perms, nil
	}
	return []string{"read"}, nil
}

// RequiredPermissions implements PermissionStore
func (s *MemoryPermissionStore) RequiredPermissions(resource string) ([]string, error) {
	if perms, ok := s.Resources[resource]; ok {
		return perms, nil
	}
	return []string{"read"}, nil
}

// TrustRecord is the cached verification outcome for one user. Exactly
// one live record exists per user id; VerifyIdentity overwrites it.
type TrustRecord struct {
	UserID    string    `json:"user_id"`
	Score     float64   `json:"score"`
	Factors   Factors   `json:"factors"`
	Timestamp time.Time `json:"timestamp"`
}

// Factors mirrors the per-factor breakdown stored with a record
type Factors struct {
	Credentials float64 `json:"credentials"`
	Device      float64 `json:"device"`
	Location    float64 `json:"location"`
	Behavior    float64 `json:"behavior"`
}
