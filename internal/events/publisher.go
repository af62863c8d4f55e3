package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/config"
	"github.com/aegisshield/security-orchestrator/internal/detection"
	"github.com/aegisshield/security-orchestrator/internal/response"
)

// Publisher fans security events out to interested consumers (SIEM
// forwarders, dashboards). Publishing is best-effort; the response
// pipeline never depends on delivery.
type Publisher interface {
	PublishThreat(ctx context.Context, event *detection.ThreatEvent) error
	PublishIncident(ctx context.Context, incident *response.Incident) error
	Close() error
}

// Envelope is the wire shape of a published event
type Envelope struct {
	Kind      string      `json:"kind"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NopPublisher discards all events; used when eventing is not configured
type NopPublisher struct{}

// PublishThreat implements Publisher
func (NopPublisher) PublishThreat(context.Context, *detection.ThreatEvent) error { return nil }

// PublishIncident implements Publisher
func (NopPublisher) PublishIncident(context.Context, *response.Incident) error { return nil }

// Close implements Publisher
func (NopPublisher) Close() error { return nil }

// RedisPublisher publishes events on a redis pub/sub channel
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher connects to redis and verifies the connection
func NewRedisPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}
	return &RedisPublisher{client: client, channel: cfg.Channel, logger: logger}, nil
}

// PublishThreat implements Publisher
func (p *RedisPublisher) PublishThreat(ctx context.Context, event *detection.ThreatEvent) error {
	return p.publish(ctx, Envelope{Kind: "threat", Payload: event, Timestamp: time.Now().UTC()})
}

// PublishIncident implements Publisher
func (p *RedisPublisher) PublishIncident(ctx context.Context, incident *response.Incident) error {
	return p.publish(ctx, Envelope{Kind: "incident", Payload: incident, Timestamp: time.Now().UTC()})
}

// Close implements Publisher
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func (p *RedisPublisher) publish(ctx context.Context, envelope Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("event publish failed", zap.String("kind", envelope.Kind), zap.Error(err))
		return errors.Wrap(err, "failed to publish event")
	}
	return nil
}
