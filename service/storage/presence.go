package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	redis2 "github.com/marketlink/sellchat/service/storage/redis"
)

// presence key: online:<role>:<id>
// Existence with TTL is the whole contract; the value carries the gateway
// id for debugging only. The TTL is set once at registration and is not
// refreshed while the socket stays open.
func presenceKey(role, id string) string { return "online:" + role + ":" + id }

// PresenceOnline marks the identity online with the given TTL.
func PresenceOnline(ctx context.Context, role, id, gatewayID string, ttl time.Duration) error {
	return redis2.GetRedis().Set(ctx, presenceKey(role, id), gatewayID, ttl).Err()
}

// PresenceOffline clears the flag on graceful disconnect (unconditional DEL).
func PresenceOffline(ctx context.Context, role, id string) error {
	return redis2.GetRedis().Del(ctx, presenceKey(role, id)).Err()
}

// IsOnline reports flag existence; an expired or absent key means offline.
func IsOnline(ctx context.Context, role, id string) (bool, error) {
	err := redis2.GetRedis().Get(ctx, presenceKey(role, id)).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
