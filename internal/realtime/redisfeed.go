package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// feedChannelPrefix namespaces feed keys inside Redis pub/sub.
const feedChannelPrefix = "realtime:"

// RedisChannelFactory opens feed subscriptions over Redis pub/sub. One
// subscription maps to one Redis channel named realtime:<key>.
type RedisChannelFactory struct {
	client *redis.Client
}

func NewRedisChannelFactory(client *redis.Client) *RedisChannelFactory {
	return &RedisChannelFactory{client: client}
}

func (f *RedisChannelFactory) Open(ctx context.Context, key string, onStatus StatusHandler, onEvent EventHandler) (Channel, error) {
	pubsub := f.client.Subscribe(ctx, feedChannelPrefix+key)

	// Receive confirms the SUBSCRIBE round-trip before we report live.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	ch := &redisChannel{key: key, pubsub: pubsub}
	go ch.loop(onStatus, onEvent)
	onStatus(StatusSubscribed, nil)
	return ch, nil
}

type redisChannel struct {
	key    string
	pubsub *redis.PubSub
	closed atomic.Bool
}

func (c *redisChannel) loop(onStatus StatusHandler, onEvent EventHandler) {
	ctx := context.Background()
	for {
		msg, err := c.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if c.closed.Load() {
				onStatus(StatusClosed, nil)
			} else {
				onStatus(StatusChannelError, err)
			}
			return
		}

		var evt Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			log.Printf("realtime: drop malformed feed payload on %s: %v", c.key, err)
			continue
		}
		onEvent(evt)
	}
}

// Unsubscribe closes the underlying pub/sub connection; the receive loop
// reports StatusClosed and exits.
func (c *redisChannel) Unsubscribe(ctx context.Context) error {
	c.closed.Store(true)
	return c.pubsub.Close()
}
