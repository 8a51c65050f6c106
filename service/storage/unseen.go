package storage

import (
	"context"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	redis2 "github.com/marketlink/sellchat/service/storage/redis"
)

// unseen counter key: unseen_<receiverRole>_<conversationId>
func unseenKey(receiverRole, conversationID string) string {
	return "unseen_" + receiverRole + "_" + conversationID
}

// IncrUnseen atomically bumps the counter, creating it at 1 if absent.
// Concurrent gateway/consumer instances rely on Redis INCR being atomic;
// never read-modify-write this key from application code.
func IncrUnseen(ctx context.Context, receiverRole, conversationID string) (int64, error) {
	return redis2.GetRedis().Incr(ctx, unseenKey(receiverRole, conversationID)).Result()
}

// GetUnseen returns the current value, 0 if the key is absent.
func GetUnseen(ctx context.Context, receiverRole, conversationID string) (int64, error) {
	n, err := redis2.GetRedis().Get(ctx, unseenKey(receiverRole, conversationID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ClearUnseen deletes the key, equivalent to resetting the count to 0.
// Called when the receiver fetches history or sends MARK_AS_SEEN.
func ClearUnseen(ctx context.Context, receiverRole, conversationID string) error {
	return redis2.GetRedis().Del(ctx, unseenKey(receiverRole, conversationID)).Err()
}
