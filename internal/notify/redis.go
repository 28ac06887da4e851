package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// RedisPublisher broadcasts events on a Redis pub/sub channel so every
// instance sharing the Redis server sees every mutation.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

// NewRedisPublisher returns a publisher on channel.
func NewRedisPublisher(client *redis.Client, channel string, log *zap.Logger) *RedisPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, log: log}
}

func (p *RedisPublisher) Notify(ctx context.Context, ev model.MutationEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("encode mutation event", zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		p.log.Warn("redis publish failed",
			zap.String("channel", p.channel),
			zap.Uint64("booking_id", ev.BookingID),
			zap.Error(err))
	}
}

// RelayRedis subscribes to channel and forwards every decoded event into
// sink until ctx is cancelled.  Undecodable payloads are logged and
// skipped.
func RelayRedis(ctx context.Context, client *redis.Client, channel string, sink Notifier, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	sub := client.Subscribe(ctx, channel)
	defer func() { _ = sub.Close() }()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				log.Warn("drop undecodable redis event", zap.Error(err))
				continue
			}
			sink.Notify(ctx, ev)
		}
	}
}

// DecodeEvent parses a JSON encoded mutation event.
func DecodeEvent(body []byte) (model.MutationEvent, error) {
	var ev model.MutationEvent
	err := json.Unmarshal(body, &ev)
	return ev, err
}
