package broadcast

import (
	"context"
	"sync"
)

// Hub is the in-process broker used when Redis is not configured. It only
// reaches viewers connected to the same server instance.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*hubSub]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[*hubSub]struct{}{}}
}

func (h *Hub) Backend() string { return "memory" }

func (h *Hub) Publish(ctx context.Context, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[msg.Channel] {
		offer(s.ch, msg)
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	s := &hubSub{hub: h, channel: channel, ch: make(chan Message, subscriberBuffer)}
	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = map[*hubSub]struct{}{}
	}
	h.subs[channel][s] = struct{}{}
	h.mu.Unlock()
	return s, nil
}

// Subscribers reports the number of open subscriptions on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channel])
}

type hubSub struct {
	hub     *Hub
	channel string
	ch      chan Message
	once    sync.Once
}

func (s *hubSub) Messages() <-chan Message { return s.ch }

func (s *hubSub) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs[s.channel], s)
		if len(s.hub.subs[s.channel]) == 0 {
			delete(s.hub.subs, s.channel)
		}
		close(s.ch)
		s.hub.mu.Unlock()
	})
	return nil
}
