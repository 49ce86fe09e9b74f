package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

// Bus carries serialized envelopes between API instances.
type Bus interface {
	Publish(ctx context.Context, userID uuid.UUID, payload []byte) error
	// Subscribe blocks, handing every envelope to deliver until ctx is done.
	Subscribe(ctx context.Context, deliver func([]byte)) error
}

// RedisBus fans events out over Redis pub/sub on gm:rt:user:<id>.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func userTopic(userID string) string {
	return "user:" + userID
}

func (b *RedisBus) Publish(ctx context.Context, userID uuid.UUID, payload []byte) error {
	return b.client.Publish(ctx, b.client.RealtimeChannel(userTopic(userID.String())), payload)
}

func (b *RedisBus) Subscribe(ctx context.Context, deliver func([]byte)) error {
	ps, err := b.client.PSubscribe(ctx, b.client.RealtimeChannel(userTopic("*")))
	if err != nil {
		return err
	}
	defer ps.Close()

	// wait for the subscription confirmation so publishes are not lost during startup
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			deliver([]byte(msg.Payload))
		}
	}
}

// LocalBus delivers in-process. It serves single-instance deployments and tests.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[int]func([]byte)
	next int
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: map[int]func([]byte){}}
}

func (b *LocalBus) Publish(_ context.Context, _ uuid.UUID, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, deliver := range b.subs {
		deliver(payload)
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, deliver func([]byte)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = deliver
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
	return nil
}

// Subscribers reports how many Subscribe calls are active.
func (b *LocalBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
