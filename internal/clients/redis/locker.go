package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock re-acquired by another worker is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a single-key SET NX PX lease shared by every process that points
// at the same Redis.
type Locker struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
}

func NewLocker(log *logger.Logger, rdb goredis.UniversalClient, prefix string) (*Locker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &Locker{
		log:    log.With("service", "RedisLocker"),
		rdb:    rdb,
		prefix: strings.Trim(strings.TrimSpace(prefix), ":"),
	}, nil
}

func (l *Locker) key(k string) string {
	if l.prefix == "" {
		return k
	}
	return l.prefix + ":" + k
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	full := l.key(key)
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", full, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.rdb, []string{full}, token).Int()
		if err != nil {
			return fmt.Errorf("redis unlock %s: %w", full, err)
		}
		if n == 0 {
			l.log.Warn("lock expired before release", "key", full)
		}
		return nil
	}
	return release, true, nil
}
