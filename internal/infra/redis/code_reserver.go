package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeReserver claims join codes in Redis so instances sharing it never hand out the same code.
// A claim is a plain key with a TTL: SET match:code:{code} 1 NX EX ttl
type CodeReserver struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCodeReserver(client *redis.Client, ttl time.Duration) *CodeReserver {
	return &CodeReserver{client: client, ttl: ttl}
}

// Reserve reports whether the code was free and is now held by the caller.
func (r *CodeReserver) Reserve(ctx context.Context, code string) (bool, error) {
	return r.client.SetNX(ctx, r.key(code), "1", r.ttl).Result()
}

func (r *CodeReserver) Release(ctx context.Context, code string) error {
	return r.client.Del(ctx, r.key(code)).Err()
}

func (r *CodeReserver) key(code string) string {
	return "match:code:" + code
}
