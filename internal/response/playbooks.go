package response

import (
	"github.com/aegisshield/security-orchestrator/internal/detection"
)

// Playbook is an ordered list of remediation steps for a threat type.
// The actions are a work order for the external remediation collaborator;
// executing them (firewall calls, account locks) is not done here.
type Playbook struct {
	ThreatType detection.ThreatType `json:"threat_type"`
	Actions    []string             `json:"actions"`
}

// PlaybookRegistry maps threat types to their remediation playbooks.
// Unknown threat types fall back to the default minimal playbook.
type PlaybookRegistry struct {
	playbooks map[detection.ThreatType]Playbook
	fallback  Playbook
}

// NewPlaybookRegistry creates a registry loaded with the built-in playbooks
func NewPlaybookRegistry() *PlaybookRegistry {
	registry := &PlaybookRegistry{
		playbooks: make(map[detection.ThreatType]Playbook),
		fallback: Playbook{
			ThreatType: detection.ThreatUnknown,
			Actions: []string{
				"Logged threat details",
				"Increased monitoring",
				"Alerted security team",
			},
		},
	}

	for _, playbook := range builtinPlaybooks() {
		registry.playbooks[playbook.ThreatType] = playbook
	}
	return registry
}

// Lookup returns the playbook for a threat type, falling back to the
// default playbook for unknown types. Lookup never fails.
func (r *PlaybookRegistry) Lookup(threatType detection.ThreatType) Playbook {
	if playbook, ok := r.playbooks[threatType]; ok {
		return playbook
	}
	return r.fallback
}

// Register adds or replaces a playbook for a threat type
func (r *PlaybookRegistry) Register(playbook Playbook) {
	r.playbooks[playbook.ThreatType] = playbook
}

// Len reports the number of registered playbooks, excluding the fallback
func (r *PlaybookRegistry) Len() int {
	return len(r.playbooks)
}

func builtinPlaybooks() []Playbook {
	return []Playbook{
		{
			ThreatType: detection.ThreatMalwareDetected,
			Actions: []string{
				"Isolated affected system",
				"Terminated malicious process",
				"Quarantined malware sample",
				"Initiated full system scan",
				"Notified security team",
			},
		},
		{
			ThreatType: detection.ThreatNetworkAnomaly,
			Actions: []string{
				"Blocked suspicious traffic",
				"Applied firewall rules",
				"Increased monitoring",
				"Logged incident details",
			},
		},
		{
			ThreatType: detection.ThreatUnauthorizedAccess,
			Actions: []string{
				"Revoked access credentials",
				"Locked user account",
				"Forced password reset",
				"Enabled MFA requirement",
				"Alerted security team",
			},
		},
		{
			ThreatType: detection.ThreatDataExfiltration,
			Actions: []string{
				"Blocked outbound connection",
				"Isolated affected systems",
				"Preserved forensic evidence",
				"Initiated incident investigation",
				"Notified compliance team",
			},
		},
		{
			ThreatType: detection.ThreatDDoSAttack,
			Actions: []string{
				"Activated DDoS mitigation",
				"Rate limited traffic",
				"Blocked attack sources",
				"Scaled infrastructure",
				"Engaged CDN protection",
			},
		},
	}
}
