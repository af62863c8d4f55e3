package detection

import (
	"sort"
	"strings"
	"sync"
)

// Scoring capabilities. The detector treats these as opaque classifiers;
// production deployments plug in real anomaly/malware/APT models.

// AnomalyScorer scores a traffic sample in [0,1)
type AnomalyScorer interface {
	ScoreTraffic(sample map[string]interface{}) (float64, error)
}

// BehaviorScorer scores user activity against a behavioral baseline
type BehaviorScorer interface {
	ScoreActivity(userID string, activity map[string]interface{}, baseline Baseline) (float64, []string, error)
}

// APTClassifier classifies indicator sets for advanced persistent threats
type APTClassifier interface {
	ClassifyIndicators(indicators map[string]interface{}) (bool, float64, []string, error)
}

// Models bundles the loaded scoring capabilities
type Models struct {
	Anomaly  AnomalyScorer
	Behavior BehaviorScorer
	APT      APTClassifier
}

// ModelSource loads detection models at detector startup
type ModelSource interface {
	LoadModels() (Models, error)
}

// Baseline is the behavioral baseline snapshot taken at startup
type Baseline struct {
	NetworkTraffic map[string]float64 `json:"network_traffic"`
	UserBehavior   map[string]float64 `json:"user_behavior"`
	SystemActivity map[string]float64 `json:"system_activity"`
}

// HeuristicModelSource serves the built-in rule-based scorers. These are
// deterministic stand-ins with the same contract as real classifiers.
type HeuristicModelSource struct{}

// LoadModels implements ModelSource
func (HeuristicModelSource) LoadModels() (Models, error) {
	return Models{
		Anomaly:  &HeuristicAnomalyScorer{},
		Behavior: &HeuristicBehaviorScorer{},
		APT:      &HeuristicAPTClassifier{},
	}, nil
}

// HeuristicAnomalyScorer scores traffic samples from rule-based signals.
// An explicit numeric "anomaly_score" field overrides the heuristics.
type HeuristicAnomalyScorer struct {
	mu sync.Mutex
}

var suspiciousFlags = map[string]float64{
	"port_scan":        0.35,
	"syn_flood":        0.45,
	"dns_tunneling":    0.40,
	"beaconing":        0.30,
	"known_bad_ip":     0.50,
	"tls_anomaly":      0.25,
	"payload_mismatch": 0.25,
}

// ScoreTraffic implements AnomalyScorer
func (s *HeuristicAnomalyScorer) ScoreTraffic(sample map[string]interface{}) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if explicit, ok := numeric(sample["anomaly_score"]); ok {
		return clampScore(explicit), nil
	}

	score := 0.05
	if pps, ok := numeric(sample["packets_per_second"]); ok && pps > 10000 {
		score += 0.40
	}
	if failed, ok := numeric(sample["failed_logins"]); ok && failed > 5 {
		score += 0.30
	}
	if out, ok := numeric(sample["bytes_out"]); ok {
		if in, ok := numeric(sample["bytes_in"]); ok && in > 0 && out/in > 50 {
			score += 0.30
		}
	}
	for flag, weight := range suspiciousFlags {
		if truthy, ok := sample[flag].(bool); ok && truthy {
			score += weight
		}
	}
	return clampScore(score), nil
}

// HeuristicBehaviorScorer compares activity against the stored baseline
type HeuristicBehaviorScorer struct{}

// ScoreActivity implements BehaviorScorer
func (HeuristicBehaviorScorer) ScoreActivity(userID string, activity map[string]interface{}, baseline Baseline) (float64, []string, error) {
	risk := 0.0
	var anomalies []string

	for key, value := range activity {
		observed, ok := numeric(value)
		if !ok {
			continue
		}
		expected, known := baseline.UserBehavior[key]
		if !known || expected == 0 {
			continue
		}
		if observed > expected*3 {
			risk += 0.35
			anomalies = append(anomalies, key)
		} else if observed > expected*1.5 {
			risk += 0.15
			anomalies = append(anomalies, key)
		}
	}

	if offHours, ok := activity["off_hours"].(bool); ok && offHours {
		risk += 0.20
		anomalies = append(anomalies, "off_hours")
	}
	if newGeo, ok := activity["new_location"].(bool); ok && newGeo {
		risk += 0.25
		anomalies = append(anomalies, "new_location")
	}

	sort.Strings(anomalies)
	return clampScore(risk), anomalies, nil
}

// HeuristicAPTClassifier pattern-matches indicator sets for the staged
// footprint of an advanced persistent threat
type HeuristicAPTClassifier struct{}

var aptStages = []string{"lateral_movement", "persistence", "privilege_escalation", "command_and_control", "staged_exfiltration"}

// ClassifyIndicators implements APTClassifier
func (HeuristicAPTClassifier) ClassifyIndicators(indicators map[string]interface{}) (bool, float64, []string, error) {
	var matched []string
	for _, stage := range aptStages {
		if truthy, ok := indicators[stage].(bool); ok && truthy {
			matched = append(matched, stage)
		}
	}
	for key := range indicators {
		if strings.HasPrefix(key, "ioc_") {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)

	confidence := clampScore(float64(len(matched)) * 0.25)
	// Two or more correlated stages indicate a campaign, not noise.
	return len(matched) >= 2, confidence, matched, nil
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// clampScore keeps scores in [0,1); analysis scores are strictly below 1
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v >= 1 {
		return 0.999
	}
	return v
}
