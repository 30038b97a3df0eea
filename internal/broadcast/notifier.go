package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chedeval/progeval/pkg/logger"
	"github.com/chedeval/progeval/pkg/metrics"
)

const publishTimeout = 2 * time.Second

// Notifier publishes response snapshots after saves. Failures are logged and
// counted, never returned.
type Notifier struct {
	pub     Publisher
	prefix  string
	backend string
}

func NewNotifier(pub Publisher, prefix string) *Notifier {
	backend := "unknown"
	if b, ok := pub.(interface{ Backend() string }); ok {
		backend = b.Backend()
	}
	return &Notifier{pub: pub, prefix: prefix, backend: backend}
}

// Channel returns the channel key for refNo.
func (n *Notifier) Channel(refNo string) string {
	return ChannelKey(n.prefix, refNo)
}

// Notify sends payload on the evaluation's channel. It outlives a canceled
// request context but is bounded by its own short timeout.
func (n *Notifier) Notify(ctx context.Context, refNo string, payload any) {
	if n == nil || n.pub == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("broadcast: encode payload for %s: %v", refNo, err)
		metrics.BroadcastFailed.WithLabelValues(n.backend).Inc()
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	msg := Message{Event: EventResponseUpdated, Channel: n.Channel(refNo), Data: data}
	if err := n.pub.Publish(ctx, msg); err != nil {
		logger.Warnf("broadcast: publish to %s failed: %v", msg.Channel, err)
		metrics.BroadcastFailed.WithLabelValues(n.backend).Inc()
		return
	}
	metrics.BroadcastPublished.WithLabelValues(n.backend).Inc()
}
