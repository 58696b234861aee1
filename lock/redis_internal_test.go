package lock

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisUnlockReleasesOnce(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	var logs bytes.Buffer
	r := NewRedis(client, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	unlock := r.unlocker("ballot:lock:voter:alice", "lease_test")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, strings.Count(logs.String(), "lock: release failed"),
		"only the first unlock reaches redis")
}
