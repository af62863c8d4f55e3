package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/config"
)

// Entry is a single audit-trail record
type Entry struct {
	ID        string                 `json:"id"`
	Action    string                 `json:"action"`
	Actor     string                 `json:"actor"`
	Target    string                 `json:"target"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Logger keeps a bounded audit trail of security-relevant operations:
// identity verifications, policy enforcement and incident responses.
// Writes are buffered through a channel so hot paths never block on the
// trail.
type Logger struct {
	cfg    config.AuditConfig
	logger *zap.Logger

	mu      sync.RWMutex
	running bool
	entries []Entry
	sink    func(Entry)

	ch   chan Entry
	done chan struct{}
}

// NewLogger creates an audit logger
func NewLogger(cfg config.AuditConfig, logger *zap.Logger) *Logger {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Logger{
		cfg:    cfg,
		logger: logger,
		ch:     make(chan Entry, bufferSize),
	}
}

// Start begins draining the audit buffer
func (l *Logger) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}
	l.done = make(chan struct{})
	go l.drain()
	l.running = true
	l.logger.Info("Audit trail started")
	return nil
}

// Stop flushes buffered entries and stops the drain loop
func (l *Logger) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	done := l.done
	l.mu.Unlock()

	close(done)
	return nil
}

// SetSink attaches a mirror for drained entries, typically the archive
// store. The sink runs on the drain goroutine, never on callers.
func (l *Logger) SetSink(sink func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// LogEvent records an audit entry. Dropped (with a warning) if the
// buffer is full rather than blocking the caller.
func (l *Logger) LogEvent(action, actor, target string, details map[string]interface{}) {
	entry := Entry{
		ID:        uuid.New().String(),
		Action:    action,
		Actor:     actor,
		Target:    target,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}

	select {
	case l.ch <- entry:
	default:
		l.logger.Warn("audit buffer full, entry dropped", zap.String("action", action))
	}
}

// Recent returns up to limit most-recent entries, newest last
func (l *Logger) Recent(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]Entry, limit)
	copy(out, l.entries[len(l.entries)-limit:])
	return out
}

func (l *Logger) drain() {
	for {
		select {
		case entry := <-l.ch:
			l.append(entry)
		case <-l.done:
			// Flush whatever is still buffered.
			for {
				select {
				case entry := <-l.ch:
					l.append(entry)
				default:
					l.logger.Info("Audit trail stopped")
					return
				}
			}
		}
	}
}

func (l *Logger) append(entry Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if retention := l.cfg.Retention; retention > 0 && len(l.entries) > retention {
		l.entries = l.entries[len(l.entries)-retention:]
	}
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		sink(entry)
	}
}
