package detection

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/config"
)

// Detector ingests traffic and behavior samples, scores anomalies and
// classifies threats. While disabled every analysis call returns an
// inert disabled result; that is a valid state, not an error.
type Detector struct {
	cfg    config.DetectionConfig
	logger *zap.Logger
	source ModelSource

	mu       sync.RWMutex
	enabled  bool
	models   Models
	baseline Baseline

	threatCount atomic.Uint64

	now func() time.Time
}

// NewDetector creates a threat detector backed by the given model source
func NewDetector(cfg config.DetectionConfig, source ModelSource, logger *zap.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger,
		source: source,
		now:    time.Now,
	}
}

// Start loads the detection models and establishes the behavioral
// baseline snapshot. A model load failure is fatal to startup.
func (d *Detector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.enabled {
		return nil
	}
	d.logger.Info("Starting threat detection engine")

	models, err := d.source.LoadModels()
	if err != nil {
		return errors.Wrap(err, "failed to load detection models")
	}
	d.models = models
	d.baseline = establishBaseline()
	d.enabled = true

	d.logger.Info("Threat detection engine started")
	return nil
}

// Stop disables the detector. In-flight analyses complete against the
// models they captured; new calls return disabled results.
func (d *Detector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return nil
	}
	d.logger.Info("Stopping threat detection engine")
	d.enabled = false
	return nil
}

// Enable turns detection on without reloading models, mirroring an
// operator-triggered activation. Requires models to have been loaded.
func (d *Detector) Enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.models.Anomaly == nil {
		models, err := d.source.LoadModels()
		if err != nil {
			return errors.Wrap(err, "failed to load detection models")
		}
		d.models = models
		d.baseline = establishBaseline()
	}
	d.enabled = true
	return nil
}

// Enabled reports whether the detector is accepting work
func (d *Detector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// ThreatCount reports the lifetime number of threats detected
func (d *Detector) ThreatCount() uint64 {
	return d.threatCount.Load()
}

func (d *Detector) snapshot() (Models, Baseline, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.models, d.baseline, d.enabled
}

// AnalyzeNetworkTraffic scores a traffic sample. Scores strictly above
// the anomaly threshold emit a threat event, severity high above 0.9
// and medium otherwise, and bump the lifetime threat counter.
func (d *Detector) AnalyzeNetworkTraffic(sample map[string]interface{}) (*TrafficAnalysis, error) {
	models, _, enabled := d.snapshot()
	if !enabled {
		return &TrafficAnalysis{Status: StatusDisabled}, nil
	}

	score, err := models.Anomaly.ScoreTraffic(sample)
	if err != nil {
		return nil, &CapabilityError{Capability: "anomaly_scorer", Err: err}
	}

	if score > d.cfg.AnomalyThreshold {
		severity := SeverityMedium
		if score > 0.9 {
			severity = SeverityHigh
		}
		d.threatCount.Add(1)

		event := NewThreatEvent(ThreatNetworkAnomaly, score, severity, d.now().UTC())
		d.logger.Warn("network threat detected",
			zap.String("event_id", event.ID),
			zap.Float64("score", score),
			zap.String("severity", string(severity)))

		return &TrafficAnalysis{
			Status:    StatusThreatDetected,
			Score:     score,
			Event:     event,
			Timestamp: event.DetectedAt,
		}, nil
	}

	return &TrafficAnalysis{Status: StatusNormal, Score: score}, nil
}

// DetectAnomalies scores each signal in the sample independently and
// returns the findings above threshold. Empty when nothing anomalous is
// found or while the detector is disabled.
func (d *Detector) DetectAnomalies(data map[string]interface{}) ([]Anomaly, error) {
	models, _, enabled := d.snapshot()
	if !enabled {
		return []Anomaly{}, nil
	}

	findings := make([]Anomaly, 0)
	for key, value := range data {
		single := map[string]interface{}{key: value}
		score, err := models.Anomaly.ScoreTraffic(single)
		if err != nil {
			return nil, &CapabilityError{Capability: "anomaly_scorer", Err: err}
		}
		if score > d.cfg.AnomalyThreshold {
			findings = append(findings, Anomaly{
				ID:         uuid.New().String(),
				Source:     key,
				Score:      score,
				DetectedAt: d.now().UTC(),
			})
		}
	}
	return findings, nil
}

// IdentifyThreats classifies detected anomalies into typed threat
// events. Each call is independent of previous ones.
func (d *Detector) IdentifyThreats(data map[string]interface{}) ([]*ThreatEvent, error) {
	anomalies, err := d.DetectAnomalies(data)
	if err != nil {
		return nil, err
	}

	threats := make([]*ThreatEvent, 0, len(anomalies))
	for _, anomaly := range anomalies {
		severity := SeverityMedium
		if anomaly.Score > 0.9 {
			severity = SeverityHigh
		}
		d.threatCount.Add(1)
		threats = append(threats, NewThreatEvent(classifySource(anomaly.Source), anomaly.Score, severity, anomaly.DetectedAt))
	}
	return threats, nil
}

// AnalyzeUserBehavior computes a risk score for the user's activity
// against the stored baseline, with a recommendation thresholded on the
// same boundaries as network analysis.
func (d *Detector) AnalyzeUserBehavior(userID string, activity map[string]interface{}) (*BehaviorAnalysis, error) {
	models, baseline, enabled := d.snapshot()
	if !enabled {
		return &BehaviorAnalysis{UserID: userID, Recommendation: StatusDisabled, Anomalies: []string{}}, nil
	}

	risk, anomalies, err := models.Behavior.ScoreActivity(userID, activity, baseline)
	if err != nil {
		return nil, &CapabilityError{Capability: "behavior_scorer", Err: err}
	}
	if anomalies == nil {
		anomalies = []string{}
	}

	recommendation := RecommendationNormal
	switch {
	case risk > 0.9:
		recommendation = RecommendationBlock
	case risk > d.cfg.AnomalyThreshold:
		recommendation = RecommendationReview
	}

	return &BehaviorAnalysis{
		UserID:         userID,
		RiskScore:      risk,
		Anomalies:      anomalies,
		Recommendation: recommendation,
	}, nil
}

// DetectAPT runs the APT classifier over the supplied indicator set
func (d *Detector) DetectAPT(indicators map[string]interface{}) (*APTResult, error) {
	models, _, enabled := d.snapshot()
	if !enabled {
		return &APTResult{Indicators: []string{}}, nil
	}

	detected, confidence, matched, err := models.APT.ClassifyIndicators(indicators)
	if err != nil {
		return nil, &CapabilityError{Capability: "apt_classifier", Err: err}
	}
	if matched == nil {
		matched = []string{}
	}

	if detected {
		d.logger.Warn("apt campaign indicators detected",
			zap.Float64("confidence", confidence),
			zap.Strings("indicators", matched))
	}

	return &APTResult{Detected: detected, Confidence: confidence, Indicators: matched}, nil
}

func establishBaseline() Baseline {
	return Baseline{
		NetworkTraffic: map[string]float64{
			"packets_per_second": 1200,
			"bytes_in":           1 << 20,
			"bytes_out":          1 << 19,
		},
		UserBehavior: map[string]float64{
			"logins_per_hour":     4,
			"resources_accessed":  25,
			"data_downloaded_mb":  50,
			"failed_logins":       1,
			"sessions_concurrent": 2,
		},
		SystemActivity: map[string]float64{
			"process_spawns": 300,
			"config_changes": 2,
		},
	}
}

func classifySource(source string) ThreatType {
	switch {
	case strings.Contains(source, "malware"), strings.Contains(source, "payload"):
		return ThreatMalwareDetected
	case strings.Contains(source, "login"), strings.Contains(source, "auth"):
		return ThreatUnauthorizedAccess
	case strings.Contains(source, "bytes_out"), strings.Contains(source, "exfil"):
		return ThreatDataExfiltration
	case strings.Contains(source, "syn_flood"), strings.Contains(source, "packets_per_second"):
		return ThreatDDoSAttack
	default:
		return ThreatNetworkAnomaly
	}
}
