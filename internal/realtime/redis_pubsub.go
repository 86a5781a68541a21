package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	redisx "github.com/aura-webinar/virtual-live/pkg/redis"
)

const eventTTL = 5 * time.Second

var errMissingEvent = errors.New("event name missing")

// redisPayload is the message published on a webinar channel.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// RedisPubSub carries webinar events between instances over Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisPubSub creates a Redis pub/sub bridge for webinar events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger, now: time.Now}
}

// PublishWebinarEvent publishes an event to the webinar's channel.
func (r *RedisPubSub) PublishWebinarEvent(ctx context.Context, webinarID uuid.UUID, event string, payload []byte) error {
	body, err := encodeEvent(event, payload, r.now())
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, redisx.ChannelForWebinar(webinarID.String()), body).Err()
}

// SubscribeWebinar calls handler for each event on the webinar's channel until
// cancel is called or ctx ends.
func (r *RedisPubSub) SubscribeWebinar(ctx context.Context, webinarID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	channel := redisx.ChannelForWebinar(webinarID.String())
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				p, err := decodeEvent([]byte(msg.Payload))
				if err != nil {
					r.logger.Debug("drop malformed webinar event", zap.String("channel", channel), zap.Error(err))
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return cancelCtx, nil
}

func encodeEvent(event string, payload []byte, at time.Time) ([]byte, error) {
	if len(payload) == 0 {
		payload = []byte("null")
	}
	return json.Marshal(redisPayload{Event: event, Data: payload, At: at.Unix()})
}

func decodeEvent(body []byte) (redisPayload, error) {
	var p redisPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return redisPayload{}, err
	}
	if p.Event == "" {
		return redisPayload{}, errMissingEvent
	}
	return p, nil
}
