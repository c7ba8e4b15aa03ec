package producer

import (
	"context"
	"encoding/json"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Burch-Group/labsync/internal/event"
	"github.com/Burch-Group/labsync/internal/metrics"
)

// DefaultChannel is the Redis pub/sub channel carrying producer envelopes.
const DefaultChannel = "labsync:events"

// RedisPublisher implements Publisher by publishing envelopes to Redis, for
// execution engines running outside the server process. Telemetry is
// advisory: publish failures are logged and dropped, never surfaced to the
// engine.
type RedisPublisher struct {
	redis   *goredis.Client
	channel string
}

func NewRedisPublisher(redis *goredis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{redis: redis, channel: channel}
}

func (p *RedisPublisher) Publish(e event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to marshal event for Redis publish", "kind", e.Kind, "error", err)
		return
	}
	if err := p.redis.Publish(context.Background(), p.channel, data).Err(); err != nil {
		slog.Warn("Failed to publish event to Redis", "kind", e.Kind, "error", err)
	}
}

// RedisSource relays envelopes from the Redis channel into a local publisher
// (normally the hub). go-redis reconnects the subscription transparently.
type RedisSource struct {
	redis     *goredis.Client
	publisher Publisher
	channel   string
}

func NewRedisSource(redis *goredis.Client, publisher Publisher, channel string) *RedisSource {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSource{redis: redis, publisher: publisher, channel: channel}
}

// Run blocks consuming the subscription until ctx is cancelled.
func (s *RedisSource) Run(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.channel)
	defer func() {
		_ = pubsub.Close()
		metrics.BridgeSubscriptionActive.Set(0)
	}()

	metrics.BridgeSubscriptionActive.Set(1)
	slog.Info("Producer bridge subscribed", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				return
			}
			s.handleMessage([]byte(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}

func (s *RedisSource) handleMessage(data []byte) {
	metrics.BridgeMessagesReceived.Inc()

	e, err := event.Decode(data)
	if err != nil {
		metrics.BridgeDecodeErrors.Inc()
		slog.Warn("Dropping undecodable producer envelope", "error", err)
		return
	}
	s.publisher.Publish(e)
}
