package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	var (
		active  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, 0, l.Len())
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, l.Len())
}

func TestNoopNeverBlocks(t *testing.T) {
	var l Locker = Noop{}
	u1, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	u2, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	u1()
	u2()
}

func TestRedisLockerRoundTrip(t *testing.T) {
	addr := os.Getenv("STORYMEM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STORYMEM_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	l, err := NewRedisLocker(ctx, RedisConfig{Addr: addr, KeyPrefix: "storymem:test:", TTL: time.Second})
	require.NoError(t, err)
	defer l.Close()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	again, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	again()
}
