package chat

import (
	"context"
	"time"

	"github.com/marketlink/sellchat/service/kafka"
	"github.com/marketlink/sellchat/service/storage"
)

// RedisPresence implements PresenceStore on the shared Redis manager.
// The TTL is fixed at registration; no heartbeat refresh.
type RedisPresence struct {
	GatewayID string
	TTL       time.Duration
}

func (p RedisPresence) Online(ctx context.Context, role, id string) error {
	return storage.PresenceOnline(ctx, role, id, p.GatewayID, p.TTL)
}

func (p RedisPresence) Offline(ctx context.Context, role, id string) error {
	return storage.PresenceOffline(ctx, role, id)
}

// RedisCounters implements CounterStore on the fast counter store.
type RedisCounters struct{}

func (RedisCounters) Incr(ctx context.Context, receiverRole, conversationID string) (int64, error) {
	return storage.IncrUnseen(ctx, receiverRole, conversationID)
}

func (RedisCounters) Clear(ctx context.Context, receiverRole, conversationID string) error {
	return storage.ClearUnseen(ctx, receiverRole, conversationID)
}

// KafkaLog implements LogProducer on the process-wide sync producer.
type KafkaLog struct {
	Topic string
}

func (k KafkaLog) Publish(conversationID string, value []byte) error {
	return kafka.SendMessage(k.Topic, conversationID, value)
}
