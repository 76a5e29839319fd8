package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 账户锁
// ============================================================================
//
// 【为什么需要账户锁？】
//
// 场景：同一账户同时发起两笔取款（比如网络抖动导致重复提交）
//
// 如果没有锁：
//   goroutine1: 查询余额=100 -> 扣款100 -> 余额=0   OK
//   goroutine2: 查询余额=100 -> 扣款100 -> 余额=-100 超扣了！
//
// 加了锁：
//   goroutine1: 获取锁 -> 查询余额=100 -> 扣款100 -> 余额=0 -> 释放锁
//   goroutine2: 获取锁失败，等待... -> 获取锁 -> 查询余额=0 -> 余额不足，拒绝
//
// 【转账双锁的死锁问题】
//
// A->B 与 B->A 两笔转账同时进行时，若各自先锁自家账户再锁对方账户，
// 就会互相持有对方需要的锁，形成死锁。
// 解法：不论转账方向，始终按 key 的字典序加锁（见 SortAccountKeys）。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证"检查+删除"的原子性
//
// ============================================================================

var ErrLockFailed = errors.New("获取账户锁失败")

// Lock 单把锁的抽象，Redis 实现用于多实例部署，本地实现用于单机与测试
type Lock interface {
	// Lock 阻塞式获取锁（带重试）
	Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error
	// Unlock 释放锁
	Unlock(ctx context.Context) error
}

// Manager 锁工厂，服务层只依赖该接口，不关心锁的实现
type Manager interface {
	NewLock(key, owner string) Lock
}

// AccountKey 账户锁的 key（按账户维度，不同账户可并发操作）
func AccountKey(userID string) string {
	return fmt.Sprintf("account:lock:%s", userID)
}

// SortAccountKeys 返回按字典序排好的两把账户锁 key。
// 转账必须按此顺序加锁，避免两笔方向相反的转账互相死锁
func SortAccountKeys(userA, userB string) (string, string) {
	ka, kb := AccountKey(userA), AccountKey(userB)
	pair := []string{ka, kb}
	sort.Strings(pair)
	return pair[0], pair[1]
}

// ============================================================================
// Redis 实现
// ============================================================================

// DistributedLock Redis 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

type RedisManager struct {
	client *redis.Client
}

func NewRedisManager(client *redis.Client) *RedisManager {
	return &RedisManager{client: client}
}

func (m *RedisManager) NewLock(key, owner string) Lock {
	return NewDistributedLock(m.client, key, owner, 30*time.Second)
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
//
// 【关键点】使用 SetNX 命令，只有当 key 不存在时才能设置成功
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	// SET key value NX EX timeout
	// EX 过期时间防止死锁（持有锁的进程崩溃时，锁会自动释放）
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
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
		// 等待一段时间后重试
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 【关键点】先检查 value 是否是自己的，再删除。
// 否则自己的锁超时被别人接手后，会误删别人的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}
