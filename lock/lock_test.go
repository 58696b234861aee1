package lock_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/ballot/lock"
)

func TestKeyedExcludesSameKey(t *testing.T) {
	l := lock.NewKeyed()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "alice")
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, 0, l.Len(), "entries are dropped once released")
}

func TestKeyedIndependentKeys(t *testing.T) {
	l := lock.NewKeyed()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "alice")
	require.NoError(t, err)
	defer unlockA()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx2, "bob")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedContextCancel(t *testing.T) {
	l := lock.NewKeyed()
	unlock, err := l.Lock(context.Background(), "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "alice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, l.Len())
}

// TestRedisLease runs against a live server named by BALLOT_TEST_REDIS.
func TestRedisLease(t *testing.T) {
	addr := os.Getenv("BALLOT_TEST_REDIS")
	if addr == "" {
		t.Skip("BALLOT_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	l := lock.NewRedis(client, lock.WithPrefix("ballot:test:"+t.Name()+":"), lock.WithTTL(5*time.Second))

	unlock, err := l.Lock(ctx, "alice")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "alice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()

	unlock2, err := l.Lock(ctx, "alice")
	require.NoError(t, err)
	unlock2()
}
