package cache

import (
	"context"
	"time"
)

// Cache stores JSON values with a TTL. A corrupt entry reads as a miss.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

func InsightsKey(sessionID string) string { return "session:" + sessionID + ":insights" }
