package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"
)

// RedisSender publishes channel events over redis pub/sub. The message
// body is a JSON envelope carrying the event name and payload, so one
// redis channel serves every event type for an equipment.
type RedisSender struct {
	client *redis.Client
}

// NewRedisSender constructs a sender.
func NewRedisSender(client *redis.Client) (*RedisSender, error) {
	if client == nil {
		return nil, errors.New("realtime: nil redis client")
	}
	return &RedisSender{client: client}, nil
}

type redisEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Send publishes one event to the named channel.
func (s *RedisSender) Send(ctx context.Context, channel, event string, payload any) error {
	if s == nil || s.client == nil {
		return errors.New("realtime: redis sender not initialized")
	}
	body, err := json.Marshal(redisEnvelope{Event: event, Data: payload})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, body).Err()
}
