package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/voxbridge/callengine/internal/logging"
)

// RedisTransport bridges a local Bus to Redis pub/sub so a horizontally
// scaled Real-Time Hub process can observe events published by the process
// running the Campaign Engine and Media Bridge. It is optional: a
// single-process deployment runs the Bus without ever constructing one.
type RedisTransport struct {
	client *redis.Client
	bus    *Bus
	prefix string
	log    logging.Logger
	origin string
}

const channelPrefix = "callengine:events:"

// wireEvent is the payload shape sent over Redis, tagged with an origin id
// so a transport never re-publishes an event it just forwarded locally.
type wireEvent struct {
	Origin string          `json:"origin"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
}

func NewRedisTransport(client *redis.Client, bus *Bus, originID string, log logging.Logger) *RedisTransport {
	return &RedisTransport{client: client, bus: bus, prefix: channelPrefix, log: log, origin: originID}
}

// Publish forwards a locally-published event to Redis so other processes'
// transports can rebroadcast it into their own local Bus.
func (t *RedisTransport) Publish(ctx context.Context, topic, eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event for redis publish: %w", err)
	}
	payload, err := json.Marshal(wireEvent{Origin: t.origin, Type: eventType, Data: raw})
	if err != nil {
		return fmt.Errorf("eventbus: marshal wire event: %w", err)
	}
	return t.client.Publish(ctx, t.prefix+topic, payload).Err()
}

// Run subscribes to every topic channel and forwards received events into
// the local Bus, until ctx is canceled. Events originating from this same
// transport instance are skipped to avoid an echo loop.
func (t *RedisTransport) Run(ctx context.Context) error {
	sub := t.client.PSubscribe(ctx, t.prefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			t.handle(msg)
		}
	}
}

func (t *RedisTransport) handle(msg *redis.Message) {
	topic := strings.TrimPrefix(msg.Channel, t.prefix)
	var we wireEvent
	if err := json.Unmarshal([]byte(msg.Payload), &we); err != nil {
		if t.log != nil {
			t.log.Warnw("eventbus: dropping malformed redis event", "error", err)
		}
		return
	}
	if we.Origin == t.origin {
		return
	}
	var data any
	_ = json.Unmarshal(we.Data, &data)
	t.bus.publishLocal(topic, we.Type, data)
}
