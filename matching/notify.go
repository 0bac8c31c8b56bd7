package matching

import (
	"context"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/metrics"
	"gitea.kood.tech/petrkubec/purpose-match/backend/realtime"
)

// Notifier pushes one-shot events to live channels. Nothing is persisted
// or retried; a user without a live channel simply misses the event.
type Notifier struct {
	registry *realtime.Registry
	log      logging.Logger
	metrics  *metrics.Metrics
}

func NewNotifier(registry *realtime.Registry, log logging.Logger, m *metrics.Metrics) *Notifier {
	return &Notifier{registry: registry, log: log, metrics: m}
}

// InterestAccepted tells userID that a poster accepted their interest. It
// reports whether the payload reached a live channel.
func (n *Notifier) InterestAccepted(ctx context.Context, userID int64) bool {
	return n.push(ctx, userID, string(realtime.KindNotification), realtime.Notification(MsgInterestAccepted))
}

func (n *Notifier) push(ctx context.Context, userID int64, kind string, payload any) bool {
	delivered, err := n.registry.Push(userID, payload)
	switch {
	case err != nil:
		n.metrics.Delivery(kind, metrics.Failed)
		n.log.Debug(ctx, "push failed", "user_id", userID, "kind", kind, "error", err)
	case !delivered:
		n.metrics.Delivery(kind, metrics.Offline)
		n.log.Debug(ctx, "user offline, push skipped", "user_id", userID, "kind", kind)
	default:
		n.metrics.Delivery(kind, metrics.Delivered)
	}
	return delivered
}
