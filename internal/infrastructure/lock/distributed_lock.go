package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 场景：同一会员从两个会话同时下单买入
//
//   没有锁：
//     请求1: 读余额=1000 -> 校验 1000>=800 -> 扣款 -> 余额=200
//     请求2: 读余额=1000 -> 校验 1000>=800 -> 扣款 -> 余额=-600  透支
//
//   加锁后：
//     请求1: 获取锁 -> 读余额=1000 -> 扣款 -> 余额=200 -> 释放锁
//     请求2: 等待 -> 获取锁 -> 读余额=200 -> 余额不足，拒绝
//
// 加锁：SET key token NX PX ttl
// 释放：Lua 脚本比较 token 后再 DEL，避免删掉别人的锁
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁持有者标识
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

// ============================================================================
// 按会员维度的交易锁
// ============================================================================

// MemberLockKey 同一会员的所有成交共用一把锁，不同会员互不影响
func MemberLockKey(memberID int64) string {
	return fmt.Sprintf("trade:lock:member:%d", memberID)
}

// RedisMemberLocker 多实例部署时使用的会员锁
type RedisMemberLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisMemberLocker(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *RedisMemberLocker {
	return &RedisMemberLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

// LockMember 获取会员锁，返回的 unlock 必须调用
func (l *RedisMemberLocker) LockMember(ctx context.Context, memberID int64) (func(), error) {
	dl := NewDistributedLock(l.client, MemberLockKey(memberID), uuid.NewString(), l.ttl)
	if err := dl.Lock(ctx, l.retryInterval, l.maxRetries); err != nil {
		return nil, err
	}
	return func() {
		// 调用方的 ctx 可能已经超时，释放锁不能依赖它
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = dl.Unlock(unlockCtx)
	}, nil
}
