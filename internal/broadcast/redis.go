package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/chedeval/progeval/pkg/logger"
)

// RedisBroker publishes over Redis PUBLISH/SUBSCRIBE so every server
// instance reaches its own viewers.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Backend() string { return "redis" }

func (b *RedisBroker) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, msg.Channel, payload).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so a publish
// issued after it returns is delivered.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	s := &redisSub{ps: ps, out: make(chan Message, subscriberBuffer)}
	s.wg.Add(1)
	go s.pump()
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	out  chan Message
	once sync.Once
	wg   sync.WaitGroup
}

func (s *redisSub) pump() {
	defer s.wg.Done()
	defer close(s.out)
	for m := range s.ps.Channel() {
		var msg Message
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			logger.Warnf("broadcast: dropping malformed message on %s: %v", m.Channel, err)
			continue
		}
		offer(s.out, msg)
	}
}

func (s *redisSub) Messages() <-chan Message { return s.out }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
		s.wg.Wait()
	})
	return err
}
