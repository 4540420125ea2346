package credstore

import (
	"context"

	"github.com/lumenhealth/consult/internal/infrastructure/redis"
)

const defaultTokenKey = "accessToken"

// RedisStore reads the bearer credential from a shared Redis instance,
// letting another process own refresh while this one only reads.
type RedisStore struct {
	redisService *redis.Service
	key          string
}

// NewRedisStore returns nil when the Redis service is unavailable, matching
// the infrastructure convention of nil-when-unconfigured.
func NewRedisStore(redisService *redis.Service) *RedisStore {
	if redisService == nil {
		return nil
	}
	return &RedisStore{redisService: redisService, key: defaultTokenKey}
}

func (rs *RedisStore) AccessToken(ctx context.Context) (string, error) {
	val, err := rs.redisService.Get(ctx, rs.key)
	if err != nil {
		if redis.IsNil(err) {
			return "", nil
		}
		return "", err
	}
	return val, nil
}
