package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNotHeld is logged when a lease expired before its holder released it.
var ErrNotHeld = errors.New("lock lease no longer held")

// RedisConfig configures a RedisLocker.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
	Retry     time.Duration
}

// RedisLocker is a lease lock shared across processes. A lease expires after TTL
// so a crashed holder cannot block a key forever.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *log.Logger
}

var _ Locker = (*RedisLocker)(nil)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisLocker connects and pings the server.
func NewRedisLocker(ctx context.Context, cfg RedisConfig) (*RedisLocker, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "storymem:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 25 * time.Millisecond
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisLocker{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		retry:  cfg.Retry,
		logger: log.New(os.Stderr, "lock: ", log.LstdFlags),
	}, nil
}

// WithLogger overrides the default logger.
func (r *RedisLocker) WithLogger(l *log.Logger) *RedisLocker {
	if l != nil {
		r.logger = l
	}
	return r
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	k := r.prefix + key
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
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

	released := false
	return func() {
		if released {
			return
		}
		released = true
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		n, err := releaseScript.Run(ctx, r.client, []string{k}, token).Int()
		switch {
		case err != nil:
			r.logger.Printf("release %s: %v", key, err)
		case n == 0:
			r.logger.Printf("release %s: %v", key, ErrNotHeld)
		}
	}, nil
}

// Close closes the underlying client.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
