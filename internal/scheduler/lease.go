package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// acquireLease takes a free key or renews it when ARGV[1] already holds it.
var acquireLease = redis.NewScript(`
	local key = KEYS[1]
	local owner = ARGV[1]
	local ttl = tonumber(ARGV[2])

	if redis.call('SET', key, owner, 'NX', 'PX', ttl) then
		return 1
	end
	if redis.call('GET', key) == owner then
		redis.call('PEXPIRE', key, ttl)
		return 1
	end
	return 0
`)

// releaseLease deletes the key only while ARGV[1] holds it.
var releaseLease = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLease keeps a single active poller across processes. The holder
// refreshes the key each cycle; a crashed holder loses it after ttl.
type RedisLease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLease creates a lease under key with a random owner token.
func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	if ttl < time.Millisecond {
		ttl = time.Second
	}
	return &RedisLease{
		client: client,
		key:    key,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Owner returns this process's lease token.
func (l *RedisLease) Owner() string {
	return l.owner
}

// Acquire takes the lease if free, or extends it if already held by us.
// Check and renewal run as one script, so a key that changed hands is
// never extended for its new holder.
func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	held, err := acquireLease.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return held == 1, nil
}

// Release deletes the key if we still hold it.
func (l *RedisLease) Release(ctx context.Context) error {
	return releaseLease.Run(ctx, l.client, []string{l.key}, l.owner).Err()
}
