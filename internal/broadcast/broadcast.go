// Package broadcast fans out evaluation response snapshots to every open
// viewer of the same evaluation. Delivery is best effort and at most once.
package broadcast

import (
	"context"
	"encoding/json"
)

// EventResponseUpdated is the single event type carried on evaluation channels.
const EventResponseUpdated = "response-updated"

// subscriberBuffer bounds queued snapshots per viewer; older ones are dropped
// first since each message carries the full response map.
const subscriberBuffer = 8

// ChannelKey derives the channel for one evaluation.
func ChannelKey(prefix, refNo string) string {
	return prefix + refNo
}

type Message struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers messages for one channel until Close is called.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Broker is a Publisher and Subscriber sharing one backend.
type Broker interface {
	Publisher
	Subscriber
	Backend() string
}

// offer enqueues msg without blocking, evicting the oldest queued message when full.
func offer(ch chan Message, msg Message) {
	for {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
