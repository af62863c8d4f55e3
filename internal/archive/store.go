package archive

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aegisshield/security-orchestrator/internal/audit"
	"github.com/aegisshield/security-orchestrator/internal/detection"
	"github.com/aegisshield/security-orchestrator/internal/response"
)

// ThreatRecord mirrors a detected threat event
type ThreatRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	EventID    string `gorm:"uniqueIndex;size:64"`
	ThreatType string `gorm:"size:64;index"`
	Score      float64
	Severity   string `gorm:"size:16"`
	DetectedAt time.Time
	Resolved   bool
	ResolvedAt *time.Time
	CreatedAt  time.Time
}

// IncidentRecord mirrors a response incident
type IncidentRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	IncidentID uint64 `gorm:"uniqueIndex"`
	ThreatID   string `gorm:"size:64;index"`
	ThreatType string `gorm:"size:64"`
	Severity   string `gorm:"size:16"`
	Actions    string `gorm:"type:text"`
	Status     string `gorm:"size:16"`
	CreatedAt  time.Time
}

// AuditRecord mirrors an audit trail entry
type AuditRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	EntryID   string `gorm:"uniqueIndex;size:64"`
	Action    string `gorm:"size:64;index"`
	Actor     string `gorm:"size:128"`
	Target    string `gorm:"size:128"`
	Timestamp time.Time
	CreatedAt time.Time
}

// Store persists the core's in-memory entities to postgres. Persistence
// is a mirror of the authoritative in-memory state, not a source of
// truth; the orchestrator runs fine without it.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to postgres and migrates the mirror tables
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open archive database")
	}

	if err := db.AutoMigrate(&ThreatRecord{}, &IncidentRecord{}, &AuditRecord{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate archive schema")
	}

	logger.Info("Archive store ready")
	return &Store{db: db, logger: logger}, nil
}

// SaveThreat archives a threat event
func (s *Store) SaveThreat(event *detection.ThreatEvent) error {
	record := ThreatRecord{
		EventID:    event.ID,
		ThreatType: string(event.Type),
		Score:      event.Score,
		Severity:   string(event.Severity),
		DetectedAt: event.DetectedAt,
		Resolved:   event.Resolved,
		ResolvedAt: event.ResolvedAt,
	}
	return errors.Wrap(s.db.Create(&record).Error, "failed to archive threat")
}

// SaveIncident archives an incident
func (s *Store) SaveIncident(incident *response.Incident) error {
	record := IncidentRecord{
		IncidentID: incident.ID,
		ThreatID:   incident.ThreatID,
		ThreatType: string(incident.ThreatType),
		Severity:   string(incident.Severity),
		Actions:    joinActions(incident.ActionsTaken),
		Status:     string(incident.Status),
		CreatedAt:  incident.CreatedAt,
	}
	return errors.Wrap(s.db.Create(&record).Error, "failed to archive incident")
}

// SaveAuditEntry archives an audit entry
func (s *Store) SaveAuditEntry(entry audit.Entry) error {
	record := AuditRecord{
		EntryID:   entry.ID,
		Action:    entry.Action,
		Actor:     entry.Actor,
		Target:    entry.Target,
		Timestamp: entry.Timestamp,
	}
	return errors.Wrap(s.db.Create(&record).Error, "failed to archive audit entry")
}

func joinActions(actions []string) string {
	out := ""
	for i, action := range actions {
		if i > 0 {
			out += "\n"
		}
		out += action
	}
	return out
}
