package configsync

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/TrackProxy/internal/broker/messages"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Invalidator interface {
	Invalidate()
}

func NewInstanceID() string {
	return uuid.NewString()
}

// Notifier реализует tenants.Notifier поверх kafka.
type Notifier struct {
	pub        Publisher
	topic      string
	instanceID string
	now        func() time.Time
}

func NewNotifier(pub Publisher, topic, instanceID string) *Notifier {
	return &Notifier{pub: pub, topic: topic, instanceID: instanceID, now: time.Now}
}

func (n *Notifier) ConfigUpdated(ctx context.Context, key string) error {
	b, err := json.Marshal(messages.ConfigUpdated{
		ID:         uuid.NewString(),
		InstanceID: n.instanceID,
		Key:        key,
		UpdatedAt:  n.now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal config updated")
	}
	return n.pub.Publish(ctx, n.topic, []byte(key), b)
}

// Listener сбрасывает кэш тенантов по событиям чужих инстансов.
type Listener struct {
	inv        Invalidator
	instanceID string
}

func NewListener(inv Invalidator, instanceID string) *Listener {
	return &Listener{inv: inv, instanceID: instanceID}
}

// Handle подходит как handler для kafka.Consumer.Consume. Битые сообщения пропускаются,
// чтобы не блокировать партицию.
func (l *Listener) Handle(_, value []byte) error {
	var msg messages.ConfigUpdated
	if err := json.Unmarshal(value, &msg); err != nil {
		slog.Warn("skip malformed config event", "error", err.Error())
		return nil
	}
	if msg.InstanceID == l.instanceID {
		return nil
	}
	l.inv.Invalidate()
	slog.Info("tenant cache invalidated", "key", msg.Key, "from", msg.InstanceID)
	return nil
}
