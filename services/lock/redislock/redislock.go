// Package redislock provides course locks shared by every process talking to the same Redis.
package redislock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
)

const keyPrefix = "registrar:lock:course:"

// release deletes the key only if it still holds our token.
var release = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	rdb   goredis.UniversalClient
	ttl   time.Duration
	retry time.Duration
}

var _ enrollment.Locker = (*Locker)(nil)

// NewClient connects to Redis and checks the connection.
func NewClient(conf core.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return rdb, nil
}

// New returns a Locker whose locks expire after ttl if never released.
// Waiting callers poll every retry interval.
// Locks are never extended: a holder running past ttl loses exclusivity, and the repository's
// conditional insert is then what keeps course capacity correct.
func New(rdb goredis.UniversalClient, ttl, retry time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &Locker{rdb: rdb, ttl: ttl, retry: retry}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	key = keyPrefix + key
	token := uuid.New().String()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "acquiring lock")
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// the lock must be released even if the caller's context is done
		ctx, cancel := context.WithTimeout(context.Background(), l.ttl)
		defer cancel()
		_ = release.Run(ctx, l.rdb, []string{key}, token).Err()
	}, nil
}
