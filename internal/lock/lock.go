package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type (
	// Locker grants at most one holder per key
	Locker interface {
		Acquire(ctx context.Context, key string) (Release, error)
	}

	// Release gives a held lock back. It is safe to call more than once.
	Release func()

	// Memory is an in-process Locker
	Memory struct {
		mu   sync.Mutex
		held map[string]struct{}
	}

	// Redis is a Locker shared by every process using the same Redis.
	// Locks expire after TTL so a crashed holder cannot block forever.
	Redis struct {
		client *redis.Client
		prefix string
		ttl    time.Duration
	}
)

const DefaultTTL = 30 * time.Minute

var ErrLocked = errors.New("already locked")

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func NewMemory() *Memory {
	return &Memory{held: map[string]struct{}{}}
}

func (m *Memory) Acquire(_ context.Context, key string) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return nil, ErrLocked
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.held, key)
		})
	}, nil
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	k := r.prefix + key
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{k}, token).Err()
		})
	}, nil
}
