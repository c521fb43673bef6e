// Package live pushes fire-and-forget update events to interested clients.
package live

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/appforge/engine/pkg/logger"
)

// Publisher delivers an event to whoever is listening. Implementations are
// best-effort: delivery failures are logged, never returned.
type Publisher interface {
	Push(ctx context.Context, event string, payload any)
}

// Channel is the pub/sub channel update events are published on.
const Channel = "appforge:updates"

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// RedisPublisher publishes events on a redis pub/sub channel.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

var _ Publisher = (*RedisPublisher)(nil)

func (p *RedisPublisher) Push(ctx context.Context, event string, payload any) {
	b, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		logger.L().Warn("marshal live event failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, Channel, b).Err(); err != nil {
		logger.L().Warn("publish live event failed", zap.String("event", event), zap.Error(err))
	}
}
