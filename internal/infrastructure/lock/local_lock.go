package lock

import (
	"context"
	"sync"
)

// LocalMemberLocker 单实例部署使用的进程内会员锁
//
// 每个会员一个容量为 1 的信号量，等待可被 ctx 取消；
// 无人持有也无人等待时回收条目。
type LocalMemberLocker struct {
	mu    sync.Mutex
	slots map[int64]*memberSlot
}

type memberSlot struct {
	sem  chan struct{}
	refs int
}

func NewLocalMemberLocker() *LocalMemberLocker {
	return &LocalMemberLocker{slots: make(map[int64]*memberSlot)}
}

func (l *LocalMemberLocker) LockMember(ctx context.Context, memberID int64) (func(), error) {
	slot := l.acquireSlot(memberID)

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(memberID)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.sem
			l.releaseSlot(memberID)
		})
	}, nil
}

func (l *LocalMemberLocker) acquireSlot(memberID int64) *memberSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[memberID]
	if !ok {
		slot = &memberSlot{sem: make(chan struct{}, 1)}
		l.slots[memberID] = slot
	}
	slot.refs++
	return slot
}

func (l *LocalMemberLocker) releaseSlot(memberID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot := l.slots[memberID]
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, memberID)
	}
}
