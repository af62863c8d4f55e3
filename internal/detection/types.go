package detection

import (
	"time"

	"github.com/google/uuid"
)

// ThreatType enumerates the threat categories the detector can emit
type ThreatType string

const (
	ThreatNetworkAnomaly     ThreatType = "network_anomaly"
	ThreatMalwareDetected    ThreatType = "malware_detected"
	ThreatUnauthorizedAccess ThreatType = "unauthorized_access"
	ThreatDataExfiltration   ThreatType = "data_exfiltration"
	ThreatDDoSAttack         ThreatType = "ddos_attack"
	ThreatUnknown            ThreatType = "unknown"
)

// Severity classifies how serious a threat is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ThreatEvent is a single detected threat. Created by the detector,
// consumed and resolved by the response engine.
type ThreatEvent struct {
	ID         string     `json:"id"`
	Type       ThreatType `json:"type"`
	Score      float64    `json:"score"`
	Severity   Severity   `json:"severity"`
	DetectedAt time.Time  `json:"detected_at"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// NewThreatEvent creates a threat event with a fresh id
func NewThreatEvent(threatType ThreatType, score float64, severity Severity, detectedAt time.Time) *ThreatEvent {
	return &ThreatEvent{
		ID:         uuid.New().String(),
		Type:       threatType,
		Score:      score,
		Severity:   severity,
		DetectedAt: detectedAt,
	}
}

// Resolve marks the event resolved at the given time
func (e *ThreatEvent) Resolve(at time.Time) {
	e.Resolved = true
	e.ResolvedAt = &at
}

// Analysis statuses
const (
	StatusDisabled       = "disabled"
	StatusNormal         = "normal"
	StatusThreatDetected = "threat_detected"
)

// TrafficAnalysis is the result of a network traffic analysis call
type TrafficAnalysis struct {
	Status    string       `json:"status"`
	Score     float64      `json:"score,omitempty"`
	Event     *ThreatEvent `json:"event,omitempty"`
	Timestamp time.Time    `json:"timestamp,omitempty"`
}

// Anomaly is a single behavioral anomaly finding
type Anomaly struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Score      float64   `json:"score"`
	DetectedAt time.Time `json:"detected_at"`
}

// BehaviorAnalysis is the result of a user behavior (UEBA) analysis
type BehaviorAnalysis struct {
	UserID         string   `json:"user_id"`
	RiskScore      float64  `json:"risk_score"`
	Anomalies      []string `json:"anomalies"`
	Recommendation string   `json:"recommendation"`
}

// Behavior recommendations
const (
	RecommendationNormal = "normal"
	RecommendationReview = "review"
	RecommendationBlock  = "block"
)

// APTResult is the outcome of an advanced-persistent-threat check
type APTResult struct {
	Detected   bool     `json:"apt_detected"`
	Confidence float64  `json:"confidence"`
	Indicators []string `json:"indicators"`
}
