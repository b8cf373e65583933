package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cached entries are keyed by token digest. A miss on the backing
// resolver is cached too, so a flood of requests with a bad token does
// not hammer the token store.
const (
	cacheKeyPrefix = "stoken:"
	unknownMarker  = "!unknown"
)

// CachedResolver decorates a Resolver with a Redis TTL cache.
type CachedResolver struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
}

func NewCachedResolver(next Resolver, redisURL string, ttl time.Duration) (*CachedResolver, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &CachedResolver{next: next, client: client, ttl: ttl}, nil
}

func (c *CachedResolver) Resolve(ctx context.Context, token string) (string, error) {
	key := cacheKeyPrefix + digest(token)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		if cached == unknownMarker {
			return "", ErrUnknownToken
		}
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		// Cache unavailable: fall through to the backing resolver.
		return c.next.Resolve(ctx, token)
	}

	serverID, err := c.next.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnknownToken) {
			c.client.Set(ctx, key, unknownMarker, c.ttl)
		}
		return "", err
	}

	c.client.Set(ctx, key, serverID, c.ttl)
	return serverID, nil
}

func (c *CachedResolver) Close() error {
	return c.client.Close()
}
