package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/metrics"
)

const publishTimeout = 5 * time.Second

// RedisPublisher puts events on a Redis pub/sub channel so that every API
// instance's Relay can deliver them to its own websocket clients.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Emit(event string, payload any, target *uuid.UUID) {
	env, err := NewEnvelope(event, payload, target)
	if err != nil {
		log.Printf("notify: encode %s: %v", event, err)
		metrics.NotificationFailed("redis")
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("notify: encode envelope %s: %v", event, err)
		metrics.NotificationFailed("redis")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
			log.Printf("notify: publish %s: %v", event, err)
			metrics.NotificationFailed("redis")
			return
		}
		metrics.NotificationSent("redis")
	}()
}

// Deliverer hands an event to locally connected clients.
type Deliverer interface {
	Deliver(env Envelope)
}

// Relay subscribes to the events channel and forwards every envelope to a
// Deliverer until ctx is cancelled.
type Relay struct {
	client    *redis.Client
	channel   string
	deliverer Deliverer
}

func NewRelay(client *redis.Client, channel string, deliverer Deliverer) *Relay {
	return &Relay{client: client, channel: channel, deliverer: deliverer}
}

func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("notify: malformed envelope on %s: %v", r.channel, err)
				continue
			}
			r.deliverer.Deliver(env)
		}
	}
}
