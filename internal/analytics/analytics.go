package analytics

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/config"
	"github.com/aegisshield/security-orchestrator/internal/detection"
	"github.com/aegisshield/security-orchestrator/internal/response"
)

const maxThreatPenalty = 20.0

// Record ties a detected threat to the incident that answered it
type Record struct {
	Event      *detection.ThreatEvent `json:"event"`
	Incident   *response.Incident     `json:"incident"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// Alert is an informational dashboard alert
type Alert struct {
	ID        int       `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PostureMetrics is the rolling-window metrics snapshot
type PostureMetrics struct {
	ThreatsDetected24h   int           `json:"threats_detected_24h"`
	IncidentsResolved24h int           `json:"incidents_resolved_24h"`
	MeanTimeToDetect     time.Duration `json:"mean_time_to_detect"`
	MeanTimeToRespond    time.Duration `json:"mean_time_to_respond"`
}

// Posture is a point-in-time projection of overall security health.
// It is recomputed on demand from the recorded history, never stored.
type Posture struct {
	OverallScore     float64        `json:"overall_score"`
	ThreatLevel      string         `json:"threat_level"`
	ComplianceStatus string         `json:"compliance_status"`
	Vulnerabilities  map[string]int `json:"vulnerabilities"`
	Metrics          PostureMetrics `json:"metrics"`
	Recommendations  []string       `json:"recommendations"`
}

// Aggregator consumes detection and response history to produce the
// rolling security score and posture reports
type Aggregator struct {
	cfg    config.AnalyticsConfig
	logger *zap.Logger

	mu      sync.RWMutex
	running bool
	records []Record

	now func() time.Time
}

// NewAggregator creates a posture aggregator
func NewAggregator(cfg config.AnalyticsConfig, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start makes the aggregator accept records
func (a *Aggregator) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	a.logger.Info("Starting security analytics engine")
	a.running = true
	return nil
}

// Stop refuses new records
func (a *Aggregator) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.logger.Info("Stopping security analytics engine")
	a.running = false
	return nil
}

// Running reports whether the aggregator accepts records
func (a *Aggregator) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// AssessThreatSeverity maps a threat score onto a severity tier.
// Boundaries are inclusive on the lower bound of each tier.
func (a *Aggregator) AssessThreatSeverity(score float64) detection.Severity {
	switch {
	case score >= 0.9:
		return detection.SeverityCritical
	case score >= 0.75:
		return detection.SeverityHigh
	case score >= 0.5:
		return detection.SeverityMedium
	default:
		return detection.SeverityLow
	}
}

// RecordThreat stores a threat/response pair for posture scoring
func (a *Aggregator) RecordThreat(event *detection.ThreatEvent, incident *response.Incident) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, Record{
		Event:      event,
		Incident:   incident,
		RecordedAt: a.now().UTC(),
	})
}

// ThreatCount reports the number of threats recorded in the rolling window
func (a *Aggregator) ThreatCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.recentLocked())
}

// CalculateSecurityScore computes the overall score: the base score
// minus two points per recent threat, penalty capped at 20, clamped to
// [0,100] and rounded to two decimals.
func (a *Aggregator) CalculateSecurityScore() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.scoreLocked()
}

func (a *Aggregator) scoreLocked() float64 {
	penalty := math.Min(float64(len(a.recentLocked()))*2, maxThreatPenalty)
	score := math.Max(0, math.Min(100, a.cfg.BaseScore-penalty))
	return math.Round(score*100) / 100
}

// ActiveAlerts returns the current informational alert list
func (a *Aggregator) ActiveAlerts() []Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()

	recent := a.recentLocked()
	if len(recent) == 0 {
		return []Alert{{
			ID:        1,
			Type:      "info",
			Message:   "System operating normally",
			Timestamp: a.now().UTC(),
		}}
	}

	alerts := make([]Alert, 0, len(recent))
	id := 1
	for _, record := range recent {
		if record.Event.Severity != detection.SeverityHigh && record.Event.Severity != detection.SeverityCritical {
			continue
		}
		alerts = append(alerts, Alert{
			ID:        id,
			Type:      string(record.Event.Severity),
			Message:   "Responded to " + string(record.Event.Type),
			Timestamp: record.RecordedAt,
		})
		id++
	}
	if len(alerts) == 0 {
		alerts = append(alerts, Alert{
			ID:        1,
			Type:      "info",
			Message:   "Threats detected and remediated",
			Timestamp: a.now().UTC(),
		})
	}
	return alerts
}

// SecurityPosture projects the recorded history into a posture report.
// Pure read; the history is never mutated.
func (a *Aggregator) SecurityPosture() Posture {
	a.mu.RLock()
	defer a.mu.RUnlock()

	recent := a.recentLocked()
	score := a.scoreLocked()

	vulnerabilities := map[string]int{
		string(detection.SeverityCritical): 0,
		string(detection.SeverityHigh):     0,
		string(detection.SeverityMedium):   0,
		string(detection.SeverityLow):      0,
	}

	resolved := 0
	var detectLatency, respondLatency time.Duration
	for _, record := range recent {
		vulnerabilities[string(record.Event.Severity)]++
		if record.Incident != nil && record.Incident.Status == response.IncidentResolved {
			resolved++
			respondLatency += record.Incident.CreatedAt.Sub(record.Event.DetectedAt)
		}
		detectLatency += record.RecordedAt.Sub(record.Event.DetectedAt)
	}

	metrics := PostureMetrics{
		ThreatsDetected24h:   len(recent),
		IncidentsResolved24h: resolved,
	}
	if len(recent) > 0 {
		metrics.MeanTimeToDetect = detectLatency / time.Duration(len(recent))
	}
	if resolved > 0 {
		metrics.MeanTimeToRespond = respondLatency / time.Duration(resolved)
	}

	compliance := "compliant"
	if score < 70 {
		compliance = "at_risk"
	}

	return Posture{
		OverallScore:     score,
		ThreatLevel:      threatLevel(recent),
		ComplianceStatus: compliance,
		Vulnerabilities:  vulnerabilities,
		Metrics:          metrics,
		Recommendations:  recommendations(recent),
	}
}

// recentLocked filters records to the rolling window. Callers hold a.mu.
func (a *Aggregator) recentLocked() []Record {
	window := a.cfg.RollingWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	cutoff := a.now().Add(-window)

	recent := make([]Record, 0, len(a.records))
	for _, record := range a.records {
		if record.RecordedAt.After(cutoff) {
			recent = append(recent, record)
		}
	}
	return recent
}

func threatLevel(recent []Record) string {
	level := detection.SeverityLow
	rank := map[detection.Severity]int{
		detection.SeverityLow:      0,
		detection.SeverityMedium:   1,
		detection.SeverityHigh:     2,
		detection.SeverityCritical: 3,
	}
	for _, record := range recent {
		if rank[record.Event.Severity] > rank[level] {
			level = record.Event.Severity
		}
	}
	return string(level)
}

func recommendations(recent []Record) []string {
	recs := []string{"Continue monitoring network traffic"}
	if len(recent) > 5 {
		recs = append(recs, "Review detection thresholds for the current threat volume")
	}
	for _, record := range recent {
		if record.Event.Severity == detection.SeverityCritical {
			recs = append(recs, "Schedule a post-incident review for critical threats")
			break
		}
	}
	recs = append(recs, "Update security policies quarterly")
	return recs
}
