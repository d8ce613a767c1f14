package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingDeliverer struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *collectingDeliverer) Deliver(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
}

func (c *collectingDeliverer) received() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.envs...)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisPublisherReachesRelay(t *testing.T) {
	client := newRedis(t)
	deliverer := &collectingDeliverer{}
	relay := NewRelay(client, "events", deliverer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "events").Result()
		return err == nil && n["events"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	target := uuid.New()
	NewRedisPublisher(client, "events").Emit("room:updated", map[string]string{"name": "ops"}, &target)

	require.Eventually(t, func() bool { return len(deliverer.received()) == 1 }, 2*time.Second, 10*time.Millisecond)

	env := deliverer.received()[0]
	assert.Equal(t, "room:updated", env.Event)
	require.NotNil(t, env.Target)
	assert.Equal(t, target, *env.Target)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "ops", payload["name"])
}

func TestRelaySkipsMalformedMessages(t *testing.T) {
	client := newRedis(t)
	deliverer := &collectingDeliverer{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewRelay(client, "events", deliverer).Run(ctx)

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "events").Result()
		return err == nil && n["events"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Publish(ctx, "events", "not json").Err())
	NewRedisPublisher(client, "events").Emit("task:created", map[string]int{"n": 1}, nil)

	require.Eventually(t, func() bool { return len(deliverer.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "task:created", deliverer.received()[0].Event)
	assert.Nil(t, deliverer.received()[0].Target)
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	target := uuid.New()

	Multi{a, Nop{}, b}.Emit("room:created", "payload", &target)

	for _, r := range []*Recorder{a, b} {
		events := r.Named("room:created")
		require.Len(t, events, 1)
		assert.Equal(t, "payload", events[0].Payload)
		assert.Equal(t, target, *events[0].Target)
	}

	a.Reset()
	assert.Empty(t, a.Events())
}
