package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisMemberLockerSerializesSameMember(t *testing.T) {
	_, client := newRedis(t)
	l := NewRedisMemberLocker(client, 5*time.Second, time.Millisecond, 5000)
	ctx := context.Background()

	const n = 20
	var (
		wg      sync.WaitGroup
		inside  int32
		overlap int32
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock, err := l.LockMember(ctx, 1)
			if !assert.NoError(t, err) {
				return
			}
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Zero(t, atomic.LoadInt32(&overlap))
}

func TestRedisMemberLockerRetriesExhausted(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisMemberLocker(client, 5*time.Second, time.Millisecond, 3)
	ctx := context.Background()

	unlock, err := l.LockMember(ctx, 1)
	require.NoError(t, err)
	assert.True(t, mr.Exists(MemberLockKey(1)))

	_, err = l.LockMember(ctx, 1)
	assert.ErrorIs(t, err, ErrLockFailed)

	// 不同会员互不影响
	unlockOther, err := l.LockMember(ctx, 2)
	require.NoError(t, err)
	unlockOther()

	unlock()
	assert.False(t, mr.Exists(MemberLockKey(1)))

	unlock, err = l.LockMember(ctx, 1)
	require.NoError(t, err)
	unlock()
}

func TestDistributedLockUnlockKeepsForeignLock(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	key := MemberLockKey(7)

	owner := NewDistributedLock(client, key, "owner", time.Minute)
	ok, err := owner.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	intruder := NewDistributedLock(client, key, "intruder", time.Minute)
	ok, err = intruder.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, intruder.Unlock(ctx))
	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "owner", val)

	require.NoError(t, owner.Unlock(ctx))
	assert.False(t, mr.Exists(key))
}

func TestDistributedLockExpires(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	key := MemberLockKey(3)

	first := NewDistributedLock(client, key, "first", time.Second)
	require.NoError(t, first.Lock(ctx, time.Millisecond, 1))

	mr.FastForward(2 * time.Second)

	second := NewDistributedLock(client, key, "second", time.Second)
	require.NoError(t, second.Lock(ctx, time.Millisecond, 1))

	// 过期后持有者的释放不影响新持有者
	require.NoError(t, first.Unlock(ctx))
	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "second", val)
}

func TestDistributedLockHonorsContext(t *testing.T) {
	_, client := newRedis(t)
	key := MemberLockKey(4)

	holder := NewDistributedLock(client, key, "holder", time.Minute)
	require.NoError(t, holder.Lock(context.Background(), time.Millisecond, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	waiter := NewDistributedLock(client, key, "waiter", time.Minute)
	err := waiter.Lock(ctx, 5*time.Millisecond, 1000)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockFailed)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
