package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/cache"
)

func newLocker(t *testing.T) (*cache.RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisLocker(client, zerolog.Nop()), mr
}

func TestNew_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := cache.New(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = cache.New(context.Background(), "127.0.0.1:1")
	assert.Error(t, err)
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	// GIVEN: Two lockers sharing one redis (two instances)
	locker, mr := newLocker(t)
	other := cache.NewRedisLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zerolog.Nop())

	// WHEN: Both contend for the same key
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		l := locker
		if i%2 == 1 {
			l = other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "bom:graph")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	// THEN: Never more than one holder at a time
	assert.Equal(t, int32(1), maxSeen)
	assert.False(t, mr.Exists("lock:bom:graph"))
}

func TestRedisLocker_ContextCancelWhileWaiting(t *testing.T) {
	locker, _ := newLocker(t)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLocker_ExpiredLockNotReleasedByOldHolder(t *testing.T) {
	// GIVEN: A lock that expired and was taken by someone else
	locker, mr := newLocker(t)
	locker.WithTTL(time.Second)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:k", "someone-else"))

	// WHEN: The old holder releases
	unlock()

	// THEN: The new holder's lock survives
	got, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
