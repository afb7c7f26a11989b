package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalMemberLockerSerializesSameMember(t *testing.T) {
	l := NewLocalMemberLocker()
	ctx := context.Background()

	const n = 50
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock, err := l.LockMember(ctx, 1)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.slots, "slots should be reclaimed")
}

func TestLocalMemberLockerIndependentMembers(t *testing.T) {
	l := NewLocalMemberLocker()
	ctx := context.Background()

	unlock1, err := l.LockMember(ctx, 1)
	require.NoError(t, err)
	defer unlock1()

	done := make(chan struct{})
	go func() {
		unlock2, err := l.LockMember(ctx, 2)
		if err == nil {
			unlock2()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("member 2 blocked by member 1")
	}
}

func TestLocalMemberLockerHonorsContext(t *testing.T) {
	l := NewLocalMemberLocker()

	unlock, err := l.LockMember(context.Background(), 9)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.LockMember(ctx, 9)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // 重复释放无副作用

	again, err := l.LockMember(context.Background(), 9)
	require.NoError(t, err)
	again()
}

func TestMemberLockKey(t *testing.T) {
	assert.Equal(t, "trade:lock:member:42", MemberLockKey(42))
}
