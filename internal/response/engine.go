package response

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/config"
	"github.com/aegisshield/security-orchestrator/internal/detection"
)

// IncidentStatus is the terminal status of an incident
type IncidentStatus string

const (
	IncidentResolved IncidentStatus = "resolved"
	IncidentFailed   IncidentStatus = "failed"
)

// Incident records a single response execution. One incident exists per
// threat event that reaches Respond; ids are strictly increasing and
// never reused.
type Incident struct {
	ID           uint64               `json:"incident_id"`
	ThreatID     string               `json:"threat_id"`
	ThreatType   detection.ThreatType `json:"threat_type"`
	Severity     detection.Severity   `json:"severity"`
	ActionsTaken []string             `json:"actions_taken"`
	CreatedAt    time.Time            `json:"timestamp"`
	Status       IncidentStatus       `json:"status"`
}

// Engine executes automated incident response. It consumes classified
// threat events, selects a playbook and tracks one incident per response.
type Engine struct {
	cfg      config.ResponseConfig
	logger   *zap.Logger
	registry *PlaybookRegistry

	incidentID atomic.Uint64

	mu        sync.RWMutex
	running   bool
	incidents []*Incident

	now func() time.Time
}

// NewEngine creates a response engine over the given playbook registry
func NewEngine(cfg config.ResponseConfig, registry *PlaybookRegistry, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		now:      time.Now,
	}
}

// Start makes the engine accept response work
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	e.logger.Info("Starting automated response engine", zap.Int("playbooks", e.registry.Len()))
	e.running = true
	return nil
}

// Stop refuses new response work. Responses already in flight complete.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.logger.Info("Stopping automated response engine")
	e.running = false
	return nil
}

// Running reports whether the engine accepts work
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Respond executes the playbook for a threat event and records the
// incident. Incident ids come from a single atomically incremented
// counter, so concurrent calls never share or skip an id. Unknown
// threat types fall back to the default playbook and never error.
func (e *Engine) Respond(event *detection.ThreatEvent, severity detection.Severity) (*Incident, error) {
	if event == nil {
		return nil, errors.New("nil threat event")
	}

	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if !running {
		return nil, errors.New("response engine is stopped")
	}

	playbook := e.registry.Lookup(event.Type)
	now := e.now().UTC()

	incident := &Incident{
		ID:           e.incidentID.Add(1),
		ThreatID:     event.ID,
		ThreatType:   event.Type,
		Severity:     severity,
		ActionsTaken: playbook.Actions,
		CreatedAt:    now,
		Status:       IncidentResolved,
	}
	event.Resolve(now)

	e.mu.Lock()
	e.incidents = append(e.incidents, incident)
	if limit := e.cfg.HistoryLimit; limit > 0 && len(e.incidents) > limit {
		e.incidents = e.incidents[len(e.incidents)-limit:]
	}
	e.mu.Unlock()

	e.logger.Warn("responded to threat",
		zap.Uint64("incident_id", incident.ID),
		zap.String("threat_type", string(event.Type)),
		zap.String("severity", string(severity)),
		zap.Int("actions", len(playbook.Actions)))

	return incident, nil
}

// IncidentCount reports the lifetime number of incidents responded to
func (e *Engine) IncidentCount() uint64 {
	return e.incidentID.Load()
}

// Incidents returns a snapshot of the retained incident history
func (e *Engine) Incidents() []*Incident {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Incident, len(e.incidents))
	copy(out, e.incidents)
	return out
}
