package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MaxStreamLen caps the stream length (approximately) so undelivered events
// cannot grow Redis without bound. Maintenance trims back to it as well.
const MaxStreamLen = 4096

// Publisher appends envelopes to the event stream.
type Publisher struct {
	client *redis.Client
	maxLen int64
}

// NewPublisher creates a Publisher backed by the given Redis client.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, maxLen: MaxStreamLen}
}

// Publish wraps payload in an envelope and appends it to the stream. It
// returns the stream entry ID assigned by Redis.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload interface{}) (string, error) {
	if eventType == "" {
		return "", fmt.Errorf("event type is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
	raw, err := env.Marshal()
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: Stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{"envelope": raw},
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	publishedTotal.WithLabelValues(eventType).Inc()
	return id, nil
}
